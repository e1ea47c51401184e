package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss/table"

	"buildctl-agent/src/contracts"
	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/resolve"
)

// printFields writes the flat fields of res, one key=value per line in key
// order, or as a JSON object.
func printFields(w io.Writer, res orchestrator.Response, asJSON bool) error {
	fields := res.Fields()
	if asJSON {
		return printJSON(w, fields)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEvent writes ev as one compact JSON line.
func printEvent(w io.Writer, ev contracts.OperationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// printFiles renders files as a table in server order.
func printFiles(w io.Writer, files []resolve.File) error {
	if len(files) == 0 {
		_, err := fmt.Fprintln(w, "No matching files.")
		return err
	}

	t := table.New().Headers("FILE", "COMPONENT", "SIZE", "CONTENT ID", "LABEL")
	for _, f := range files {
		t.Row(f.FileName, f.ComponentName, strconv.FormatInt(f.SizeBytes, 10), f.ContentID, f.Label)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// printRecords renders operation history as a table.
func printRecords(w io.Writer, records []contracts.OperationRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No recorded operations.")
		return err
	}

	t := table.New().Headers("SEQ", "TIME", "OPERATION", "SUBJECT", "OUTCOME", "DURATION", "ERROR")
	for _, r := range records {
		t.Row(strconv.FormatInt(r.Seq, 10), r.Timestamp, r.Operation, r.Subject, r.Outcome,
			fmt.Sprintf("%dms", r.DurationMS), r.Error)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
