// Package tui provides a terminal browser for the log and artifact files of a
// build result. Logs can be previewed in place and any file saved locally.
package tui

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/resolve"
)

// DefaultPreviewLines is the number of trailing log lines shown in the detail panel.
const DefaultPreviewLines = 200

// Status is the load state of the file list.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusError
)

// Options selects the files to browse.
type Options struct {
	BuildResultRef   string
	ContributionType string
	Pattern          string
	// DownloadFolder receives files saved with "d".
	DownloadFolder string
	PreviewLines   int
}

type filesLoadedMsg struct {
	files []resolve.File
	err   error
}

type previewMsg struct {
	key   string
	lines []string
	err   error
}

type downloadedMsg struct {
	fileName string
	path     string
	err      error
}

// preview is the detail panel state of one file.
type preview struct {
	loading bool
	lines   []string
	err     error
}

// MainModel is the Bubble Tea model for the file browser.
type MainModel struct {
	ctx  context.Context
	orch *orchestrator.Orchestrator
	opts Options

	styles         *StyleConfig
	header         Header
	listView       View
	detailViewport viewport.Model
	progress       ProgressModel

	items    []Item
	previews map[string]*preview
	status   Status
	err      error
	message  string

	searchMode    bool
	searchQuery   string
	detailFocused bool

	width  int
	height int
	ready  bool
}

// NewMainModel creates a browser over the files of opts.BuildResultRef.
func NewMainModel(ctx context.Context, orch *orchestrator.Orchestrator, opts Options) MainModel {
	if opts.ContributionType == "" {
		opts.ContributionType = "log"
	}
	if opts.PreviewLines <= 0 {
		opts.PreviewLines = DefaultPreviewLines
	}
	if opts.DownloadFolder == "" {
		opts.DownloadFolder = "."
	}

	styles := DefaultStyles()
	progress := NewProgressModel()
	progress.stage = "Loading files"
	progress.active = 1
	progress.ticking = true

	return MainModel{
		ctx:            ctx,
		orch:           orch,
		opts:           opts,
		styles:         styles,
		header:         NewHeader(opts.BuildResultRef, opts.ContributionType, styles),
		listView:       NewView(styles),
		detailViewport: viewport.New(0, 0),
		progress:       progress,
		previews:       make(map[string]*preview),
		status:         StatusLoading,
	}
}

// Run starts the browser and blocks until the user quits.
func Run(ctx context.Context, orch *orchestrator.Orchestrator, opts Options) error {
	p := tea.NewProgram(NewMainModel(ctx, orch, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init loads the file list.
func (m MainModel) Init() tea.Cmd {
	return tea.Batch(SpinnerTick(), m.loadFiles())
}

func (m MainModel) loadFiles() tea.Cmd {
	ctx, orch, opts := m.ctx, m.orch, m.opts
	return func() tea.Msg {
		res, err := orch.ListFiles(ctx, orchestrator.ListFilesRequest{
			BuildResultRef:    opts.BuildResultRef,
			FileNameOrPattern: opts.Pattern,
			ContributionType:  opts.ContributionType,
			MaxResults:        resolve.MaxResultsLimit,
		})
		if err != nil {
			return filesLoadedMsg{err: err}
		}
		return filesLoadedMsg{files: res.Files}
	}
}

// downloadRequest selects f by content id when it has one, by name otherwise.
func (m MainModel) downloadRequest(f resolve.File, folder string) orchestrator.DownloadFileRequest {
	req := orchestrator.DownloadFileRequest{
		BuildResultRef:    m.opts.BuildResultRef,
		ComponentName:     f.ComponentName,
		ContributionType:  string(f.Type),
		DestinationFolder: folder,
	}
	if f.ContentID != "" {
		req.ContentID = f.ContentID
	} else {
		req.FileName = f.FileName
	}
	return req
}

// previewCmd downloads item into a scratch folder and returns its tail.
func (m MainModel) previewCmd(item Item) tea.Cmd {
	ctx, orch, lines := m.ctx, m.orch, m.opts.PreviewLines
	key := item.Key()
	return func() tea.Msg {
		dir, err := os.MkdirTemp("", "buildctl-browse-*")
		if err != nil {
			return previewMsg{key: key, err: err}
		}
		defer os.RemoveAll(dir)

		res, err := orch.DownloadFile(ctx, m.downloadRequest(item.File, dir))
		if err != nil {
			return previewMsg{key: key, err: fmt.Errorf("%s error: %w", orchestrator.ErrorKind(err), err)}
		}
		data, err := os.ReadFile(res.FilePath)
		if err != nil {
			return previewMsg{key: key, err: err}
		}
		return previewMsg{key: key, lines: TailLines(data, lines)}
	}
}

// downloadCmd saves item into the download folder.
func (m MainModel) downloadCmd(item Item) tea.Cmd {
	ctx, orch := m.ctx, m.orch
	req := m.downloadRequest(item.File, m.opts.DownloadFolder)
	return func() tea.Msg {
		res, err := orch.DownloadFile(ctx, req)
		if err != nil {
			return downloadedMsg{fileName: item.File.FileName, err: fmt.Errorf("%s error: %w", orchestrator.ErrorKind(err), err)}
		}
		return downloadedMsg{fileName: res.FileName, path: res.FilePath}
	}
}

// Update handles messages and updates the model state.
func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeComponents()
		return m, nil

	case filesLoadedMsg:
		m.progress.Finish()
		if msg.err != nil {
			m.status = StatusError
			m.err = msg.err
			return m, nil
		}
		m.status = StatusReady
		m.err = nil
		m.setFiles(msg.files)
		return m, nil

	case previewMsg:
		m.progress.Finish()
		m.previews[msg.key] = &preview{lines: msg.lines, err: msg.err}
		m.refreshDetail()
		return m, nil

	case downloadedMsg:
		m.progress.Finish()
		if msg.err != nil {
			m.message = fmt.Sprintf("Failed to download %s: %v", msg.fileName, msg.err)
		} else {
			m.message = fmt.Sprintf("Saved %s to %s", msg.fileName, msg.path)
		}
		return m, nil

	case SpinnerTickMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKey(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m MainModel) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		m.searchMode = false
	case tea.KeyEsc:
		m.searchMode = false
		m.searchQuery = ""
	case tea.KeyBackspace:
		if runes := []rune(m.searchQuery); len(runes) > 0 {
			m.searchQuery = string(runes[:len(runes)-1])
		}
	case tea.KeySpace:
		m.searchQuery += " "
	case tea.KeyRunes:
		m.searchQuery += string(msg.Runes)
	}
	m.header.SetSearch(m.searchQuery, m.searchMode)
	m.applyFilter()
	return m, nil
}

func (m MainModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.detailFocused = false
		return m, nil
	case "/":
		m.searchMode = true
		m.header.SetSearch(m.searchQuery, true)
		return m, nil
	case "tab":
		m.header.CycleFilter()
		m.applyFilter()
		return m, nil
	case "enter":
		return m.startPreview()
	case "d":
		return m.startDownload()
	case "r":
		if m.status == StatusLoading {
			return m, nil
		}
		m.status = StatusLoading
		m.previews = make(map[string]*preview)
		return m, tea.Batch(m.progress.Start("Loading files"), m.loadFiles())
	}

	var cmd tea.Cmd
	if m.detailFocused {
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}

	before, _ := m.listView.GetSelectedItem()
	m.listView, cmd = m.listView.Update(msg)
	if after, ok := m.listView.GetSelectedItem(); ok && after.Key() != before.Key() {
		m.refreshDetail()
	}
	return m, cmd
}

func (m MainModel) startPreview() (tea.Model, tea.Cmd) {
	item, ok := m.listView.GetSelectedItem()
	if !ok {
		return m, nil
	}
	m.detailFocused = true
	if !item.previewable() {
		m.message = "Artifacts cannot be previewed, press d to download"
		return m, nil
	}
	if p, ok := m.previews[item.Key()]; ok && (p.loading || p.err == nil) {
		return m, nil
	}

	m.previews[item.Key()] = &preview{loading: true}
	m.refreshDetail()
	return m, tea.Batch(m.progress.Start("Fetching "+item.File.FileName), m.previewCmd(item))
}

func (m MainModel) startDownload() (tea.Model, tea.Cmd) {
	item, ok := m.listView.GetSelectedItem()
	if !ok {
		return m, nil
	}
	return m, tea.Batch(m.progress.Start("Saving "+item.File.FileName), m.downloadCmd(item))
}

// setFiles replaces the loaded files and reapplies the current filters.
func (m *MainModel) setFiles(files []resolve.File) {
	m.items = make([]Item, len(files))
	for i, f := range files {
		m.items[i] = Item{File: f}
	}
	m.header.SetComponents(componentsOf(m.items))
	m.applyFilter()
}
