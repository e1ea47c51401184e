package mcp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/mark3labs/mcp-go/mcp"

	"buildctl-agent/src/orchestrator"
)

// DefaultPreviewLines is the number of trailing lines preview_file returns.
const DefaultPreviewLines = 80

// maxPreviewLines caps the lines parameter.
const maxPreviewLines = 1000

var (
	// 2024-05-21T10:00:05.123Z, 2024-05-21 10:00:05,123, 2024-05-21T10:00:05+00:00
	leadingTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}[.,]?\d*Z?([+-]\d{2}:?\d{2})?\s*`)
	// container ids, git SHAs, content digests
	longHex = regexp.MustCompile(`\b[a-f0-9]{12,}\b`)
	// absolute paths three or more directories deep; keeps file[:line]
	deepPath    = regexp.MustCompile(`/(?:[^/\s]+/){3,}([^/\s:]+(?::\d+)?)`)
	spaceRun    = regexp.MustCompile(`\s+`)
	elideMarker = "... "
)

// minSharedPrefix is the shortest common prefix worth eliding.
const minSharedPrefix = 20

// compactLine rewrites one log line to carry the same signal in fewer tokens.
func compactLine(line string) string {
	line = ansi.Strip(line)
	line = leadingTimestamp.ReplaceAllString(line, "")
	line = longHex.ReplaceAllString(line, "<HASH>")
	line = deepPath.ReplaceAllString(line, ".../$1")
	return strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
}

// sharedPrefix returns the common prefix of lines, or "" when it is too
// short to be worth eliding. The prefix never ends inside a UTF-8 sequence.
func sharedPrefix(lines []string) string {
	if len(lines) < 2 {
		return ""
	}
	first := lines[0]
	n := len(first)
	for _, line := range lines[1:] {
		if len(line) < n {
			n = len(line)
		}
		i := 0
		for i < n && line[i] == first[i] {
			i++
		}
		n = i
		if n < minSharedPrefix {
			return ""
		}
	}
	for n > 0 && n < len(first) && !utf8.RuneStart(first[n]) {
		n--
	}
	if n < minSharedPrefix {
		return ""
	}
	return first[:n]
}

// compactTail returns the last n non-blank lines of data, compacted.
func compactTail(data []byte, n int) []string {
	var tail []string
	for _, raw := range bytes.Split(data, []byte("\n")) {
		line := compactLine(string(raw))
		if line == "" {
			continue
		}
		tail = append(tail, line)
		if len(tail) > n {
			tail = tail[1:]
		}
	}

	if prefix := sharedPrefix(tail); prefix != "" {
		for i, line := range tail {
			tail[i] = elideMarker + line[len(prefix):]
		}
	}
	return tail
}

func (s *Server) handlePreviewFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lines := request.GetInt("lines", DefaultPreviewLines)
	if lines < 1 || lines > maxPreviewLines {
		return mcp.NewToolResultError(fmt.Sprintf("lines %d is invalid, must be between 1 and %d", lines, maxPreviewLines)), nil
	}

	dir, err := os.MkdirTemp("", "buildctl-preview-*")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create preview folder: %v", err)), nil
	}
	defer os.RemoveAll(dir)

	res, err := s.orch.DownloadFile(ctx, orchestrator.DownloadFileRequest{
		BuildResultRef:    request.GetString("build_result_id", ""),
		FileName:          request.GetString("file_name", ""),
		ContentID:         request.GetString("content_id", ""),
		ComponentName:     request.GetString("component", ""),
		DestinationFolder: dir,
	})
	if err != nil {
		return s.result(nil, err)
	}

	data, err := os.ReadFile(res.FilePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read %s: %v", res.FileName, err)), nil
	}

	tail := compactTail(data, lines)
	header := fmt.Sprintf("%s: last %d line(s)\n", res.FileName, len(tail))
	return mcp.NewToolResultText(header + strings.Join(tail, "\n")), nil
}
