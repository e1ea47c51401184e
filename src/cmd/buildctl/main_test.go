package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildctl-agent/src/contracts"
	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/resolve"
)

const testRef = "3d9b1f5a-7c2e-4a6b-8d0f-1e3c5a7b9d2f"

// newBuildServer fakes the build server endpoints the tests hit and points
// BUILDCTL_SERVER_URL at it.
func newBuildServer(t *testing.T) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/buildresults/"+testRef+"/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"snap-9","name":"release-candidate"}`))
	})
	mux.HandleFunc("/api/v1/buildresults/"+testRef+"/contributions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"groups":[{"component":"api","items":[
			{"type":"log","file_name":"api.log","content_id":"c-1","size_bytes":42,"internal_id":"1"},
			{"type":"log","file_name":"api-test.log","content_id":"c-2","size_bytes":7,"internal_id":"2"}]}]}`))
	})
	mux.HandleFunc("/api/v1/buildresults/"+testRef+"/contributions/2/content", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok 12 tests\n"))
	})
	mux.HandleFunc("/api/v1/builddefinitions/nightly/requests", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if props, _ := body["properties"].(map[string]any); props["branch"] != "main" {
			t.Errorf("properties = %v, want branch=main", body["properties"])
		}
		w.Write([]byte(`{"build_result_id":"` + testRef + `"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// Keep config files on the developer machine out of the test
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("BUILDCTL_SERVER_URL", srv.URL)
	t.Setenv("BUILDCTL_REDPANDA_BROKERS", "")
	t.Setenv("BUILDCTL_POSTGRES_DSN", "")
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Snapshot(t *testing.T) {
	newBuildServer(t)

	code, stdout, stderr := execute(t, "snapshot", testRef)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	want := "snapshotId=snap-9\nsnapshotName=release-candidate\n"
	if stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestRun_SnapshotJSON(t *testing.T) {
	newBuildServer(t)

	code, stdout, stderr := execute(t, "--json", "snapshot", testRef)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if diff := cmp.Diff(map[string]string{"snapshotId": "snap-9", "snapshotName": "release-candidate"}, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_FilesAndDownload(t *testing.T) {
	newBuildServer(t)

	code, stdout, stderr := execute(t, "files", testRef, "--pattern", "api-.*")
	if code != 0 {
		t.Fatalf("files exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "api-test.log") || strings.Contains(stdout, "api.log") {
		t.Errorf("files output:\n%s", stdout)
	}

	dest := t.TempDir()
	code, stdout, stderr = execute(t, "download", testRef, "--content-id", "c-2", "--dest", dest)
	if code != 0 {
		t.Fatalf("download exit code = %d, stderr:\n%s", code, stderr)
	}
	path := filepath.Join(dest, "api-test.log")
	if !strings.Contains(stdout, "filePath="+path) {
		t.Errorf("download output = %q", stdout)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "ok 12 tests\n" {
		t.Errorf("downloaded file = %q, %v", data, err)
	}
}

func TestRun_RequestBuild(t *testing.T) {
	newBuildServer(t)

	code, stdout, stderr := execute(t, "request", "nightly", "--set", "branch=main")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if stdout != "buildResultId="+testRef+"\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantStderr string
	}{
		{name: "invalid ref", args: []string{"snapshot", "not-a-uuid"}, wantStderr: "Invalid input"},
		{name: "invalid state", args: []string{"wait", testRef, "--states", "DONE"}, wantStderr: "DONE"},
		{name: "both selectors", args: []string{"download", testRef, "--file", "a.log", "--content-id", "c-1"}, wantStderr: "none of the others can be"},
		{name: "missing argument", args: []string{"files"}, wantStderr: "accepts 1 arg"},
		{name: "events in local mode", args: []string{"events"}, wantStderr: "BUILDCTL_REDPANDA_BROKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newBuildServer(t)
			code, _, stderr := execute(t, tt.args...)
			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr, tt.wantStderr)
			}
		})
	}
}

func TestRun_MissingServerURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("BUILDCTL_SERVER_URL", "")

	code, _, stderr := execute(t, "snapshot", testRef)
	if code != 1 || !strings.Contains(stderr, "BUILDCTL_SERVER_URL") {
		t.Errorf("exit code = %d, stderr = %q", code, stderr)
	}
}

func TestPrintFields(t *testing.T) {
	var buf bytes.Buffer
	res := &orchestrator.WorkspaceResponse{WorkspaceID: "ws-1", WorkspaceName: "ci"}

	if err := printFields(&buf, res, false); err != nil {
		t.Fatal(err)
	}
	if want := "workspaceId=ws-1\nworkspaceName=ci\n"; buf.String() != want {
		t.Errorf("printFields() = %q, want %q", buf.String(), want)
	}
}

func TestPrintFiles(t *testing.T) {
	var buf bytes.Buffer
	if err := printFiles(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No matching files.\n" {
		t.Errorf("printFiles(nil) = %q", buf.String())
	}

	buf.Reset()
	files := []resolve.File{{FileName: "web.log", ComponentName: "web", SizeBytes: 1024, ContentID: "c-w"}}
	if err := printFiles(&buf, files); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"FILE", "web.log", "1024", "c-w"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("printFiles() missing %q:\n%s", want, buf.String())
		}
	}
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	if err := printRecords(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No recorded operations.\n" {
		t.Errorf("printRecords(nil) = %q", buf.String())
	}

	buf.Reset()
	records := []contracts.OperationRecord{{Seq: 7, OperationEvent: contracts.OperationEvent{
		Operation:  contracts.OpWaitForBuild,
		Subject:    testRef,
		Outcome:    contracts.OutcomeOK,
		DurationMS: 42,
	}}}
	if err := printRecords(&buf, records); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"OPERATION", "wait_for_build", testRef, "42ms"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("printRecords() missing %q:\n%s", want, buf.String())
		}
	}
}

func TestRootCommands(t *testing.T) {
	want := []string{"browse", "download", "events", "files", "history", "mcp", "request", "serve", "snapshot", "wait", "workspace"}

	var got []string
	for _, c := range newRootCmd().Commands() {
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		got = append(got, c.Name())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
}
