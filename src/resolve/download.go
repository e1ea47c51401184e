package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"buildctl-agent/src/provider"
)

// maxCollisionSuffix bounds the search for a free destination name.
const maxCollisionSuffix = 10000

// DownloadQuery selects exactly one contribution by FileName or ContentID.
type DownloadQuery struct {
	BuildResultRef      string
	Type                provider.ContributionType // defaults to log
	FileName            string
	ContentID           string
	Component           string
	DestinationFolder   string
	DestinationFileName string // defaults to the contribution's file name
}

// Download reports where a contribution was written.
type Download struct {
	FileName     string
	FilePath     string
	Contribution provider.Contribution
	Bytes        int64
}

// DownloadFile writes the first contribution matching q into
// q.DestinationFolder. An existing file is never overwritten: the content
// goes to <stem>_<n><ext> with the smallest free n instead.
func (r *Resolver) DownloadFile(ctx context.Context, q DownloadQuery) (*Download, error) {
	ref, err := provider.ParseBuildResultRef(q.BuildResultRef)
	if err != nil {
		return nil, err
	}
	switch {
	case q.FileName != "" && q.ContentID != "":
		return nil, provider.Validationf("fileName and contentId are mutually exclusive, got fileName %q and contentId %q", q.FileName, q.ContentID)
	case q.FileName == "" && q.ContentID == "":
		return nil, provider.Validationf("either fileName or contentId must be specified")
	}
	if err := validateDestinationName(q.DestinationFileName); err != nil {
		return nil, err
	}
	if err := validateDestinationFolder(q.DestinationFolder); err != nil {
		return nil, err
	}
	ctype, err := contributionType(q.Type)
	if err != nil {
		return nil, err
	}

	contributions, err := r.enumerate(ctx, ref, ctype, q.Component)
	if err != nil {
		return nil, err
	}
	c, ok := selectFirst(contributions, q)
	if !ok {
		return nil, noMatch(ref, ctype, q)
	}

	name := q.DestinationFileName
	if name == "" {
		name = baseName(c.FileName)
	}
	f, path, err := createExclusive(q.DestinationFolder, name)
	if err != nil {
		return nil, err
	}

	n, err := r.write(ctx, ref, c, f, path)
	if err != nil {
		return nil, err
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	r.metrics.Downloaded(n)
	r.log.Info("[ContributionResolver] downloaded %s (%d bytes) to %s", c.FileName, n, path)

	return &Download{
		FileName:     filepath.Base(path),
		FilePath:     path,
		Contribution: c,
		Bytes:        n,
	}, nil
}

func selectFirst(contributions []provider.Contribution, q DownloadQuery) (provider.Contribution, bool) {
	for _, c := range contributions {
		if q.FileName != "" && c.FileName == q.FileName {
			return c, true
		}
		if q.ContentID != "" && c.ContentID == q.ContentID {
			return c, true
		}
	}
	return provider.Contribution{}, false
}

func noMatch(ref provider.BuildResultRef, ctype provider.ContributionType, q DownloadQuery) error {
	selector, value := "file name", q.FileName
	if q.ContentID != "" {
		selector, value = "content id", q.ContentID
	}

	switch {
	case q.Component != "":
		return provider.Configurationf("no %s contribution with %s %q in component %q of build result %s", ctype, selector, value, q.Component, ref)
	case q.ContentID != "":
		return provider.Configurationf("no %s contribution with content id %q in build result %s", ctype, value, ref)
	default:
		return provider.Configurationf("no %s contribution named %q in build result %s", ctype, value, ref)
	}
}

// separators covers both Unix and Windows path separators regardless of
// the host OS.
const separators = `/\`

func validateDestinationName(name string) error {
	if name == "" {
		return nil
	}
	if strings.ContainsAny(name, separators) || strings.ContainsRune(name, os.PathSeparator) {
		return provider.Validationf("destination file name %q must not contain a path separator", name)
	}
	if name == "." || name == ".." {
		return provider.Validationf("destination file name %q is invalid", name)
	}
	return nil
}

func validateDestinationFolder(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return provider.Validationf("destination folder must be specified")
	}
	info, err := os.Stat(folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return provider.Validationf("destination folder %q does not exist", folder)
		}
		return provider.NewIOError(fmt.Sprintf("failed to inspect destination folder %q", folder), err)
	}
	if !info.IsDir() {
		return provider.Validationf("destination folder %q is not a directory", folder)
	}

	scratch, err := os.CreateTemp(folder, ".buildctl-write-*")
	if err != nil {
		return provider.Validationf("destination folder %q is not writable: %v", folder, err)
	}
	scratch.Close()
	os.Remove(scratch.Name())
	return nil
}

// baseName strips any directory part a server-side file name carries.
func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "contribution"
	}
	return name
}

// createExclusive creates name in folder, or the first free collision name.
func createExclusive(folder, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}

	candidate := name
	for n := 1; ; n++ {
		path := filepath.Join(folder, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", provider.NewIOError("failed to create "+path, err)
		}
		if n > maxCollisionSuffix {
			return nil, "", provider.NewIOError("no free file name for "+name+" in "+folder, err)
		}
		candidate = stem + "_" + strconv.Itoa(n) + ext
	}
}

// errWriter remembers the first local write failure so it can be told
// apart from a remote failure.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil && e.err == nil {
		e.err = err
	}
	return n, err
}

func (r *Resolver) write(ctx context.Context, ref provider.BuildResultRef, c provider.Contribution, f *os.File, path string) (int64, error) {
	ew := &errWriter{w: f}
	n, err := r.svc.DownloadContribution(ctx, ref, c, ew)

	closeErr := f.Close()
	switch {
	case ew.err != nil:
		err = provider.NewIOError("failed to write "+path, ew.err)
	case err != nil && ctx.Err() != nil:
		err = provider.NewInterrupted(ctx.Err())
	case err != nil:
		err = fmt.Errorf("failed to download %s from build result %s: %w", c.FileName, ref, err)
	case closeErr != nil:
		err = provider.NewIOError("failed to write "+path, closeErr)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}
