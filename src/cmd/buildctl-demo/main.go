// Demo program to showcase the buildctl file browser against an in-process
// build server with a realistic set of build logs.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"buildctl-agent/src/logger"
	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/provider"
	"buildctl-agent/src/provider/providertest"
	"buildctl-agent/src/tui"
)

const demoRef = "6b1e4d2a-9c7f-4e8b-a3d5-0f2c4e6a8b1d"

func main() {
	fmt.Println("Generating sample build data...")
	svc := generateSampleBuild()

	dest, err := os.MkdirTemp("", "buildctl-demo-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating download folder: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Files saved with 'd' go to %s\n", dest)

	orch := orchestrator.New(svc, logger.NewSilentLogger())
	if err := tui.Run(context.Background(), orch, tui.Options{
		BuildResultRef: demoRef,
		DownloadFolder: dest,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

type sampleLog struct {
	component string
	name      string
	lines     []string
}

func generateSampleBuild() *providertest.FakeService {
	svc := providertest.NewFakeService()
	svc.AddBuild(demoRef, "ERROR", provider.StateCompleted)

	logs := []sampleLog{
		{component: "", name: "setup.log", lines: []string{
			"2026-10-19T08:00:01Z Resolving build definition nightly-integration",
			"2026-10-19T08:00:02Z Populating workspace from stream main@1187",
			"2026-10-19T08:00:09Z Workspace ready (4213 files)",
		}},
		{component: "backend", name: "integration-tests.log", lines: []string{
			"[INFO] Running test: com.acme.processor.LargeBatchTest",
			"[INFO] Loading dataset: datasets/huge_import.csv (500MB)",
			"[DEBUG] Memory usage: 1024MB / 2048MB",
			"[INFO] Processing batch 1 of 50...",
			"[WARN] GC overhead limit exceeded imminent",
			"\x1b[31m[FATAL] java.lang.OutOfMemoryError: Java heap space\x1b[0m",
			"\tat com.acme.processor.BatchLoader.load(BatchLoader.java:142)",
			"\tat com.acme.processor.LargeBatchTest.run(LargeBatchTest.java:57)",
		}},
		{component: "backend", name: "compile.log", lines: []string{
			"[INFO] Compiling 312 source files to /build/backend/target/classes",
			"[INFO] BUILD SUCCESS",
		}},
		{component: "frontend", name: "unit-tests.log", lines: []string{
			"PASS src/components/Header.test.tsx",
			"FAIL src/components/Checkout.test.tsx",
			"  ● Checkout › submits the order",
			"    expect(received).toBe(expected)",
			"    Expected: \"confirmed\"",
			"    Received: \"pending\"",
			"Tests: 1 failed, 211 passed, 212 total",
		}},
		{component: "frontend", name: "lint.log", lines: []string{
			"src/utils/date.ts:14:7 warning 'tz' is assigned a value but never used",
			"✖ 1 problem (0 errors, 1 warning)",
		}},
		{component: "deploy", name: "staging-rollout.log", lines: []string{
			"Applying manifests to namespace staging",
			"deployment.apps/api configured",
			"Waiting for rollout to finish: 1 of 3 updated replicas are available...",
			"error: deployment \"api\" exceeded its progress deadline",
		}},
	}

	groups := map[string]*provider.ContributionGroup{}
	var order []string
	for i, l := range logs {
		id := fmt.Sprintf("log-%d", i+1)
		data := []byte(strings.Join(l.lines, "\n") + "\n")
		svc.SetContent(id, data)

		g, ok := groups[l.component]
		if !ok {
			g = &provider.ContributionGroup{Component: l.component}
			groups[l.component] = g
			order = append(order, l.component)
		}
		g.Items = append(g.Items, provider.Contribution{
			Type:       provider.ContributionLog,
			FileName:   l.name,
			ContentID:  "c-" + id,
			SizeBytes:  int64(len(data)),
			Label:      strings.TrimSuffix(l.name, ".log"),
			InternalID: id,
		})
	}

	for _, c := range order {
		svc.AddContributions(demoRef, *groups[c])
	}
	return svc
}
