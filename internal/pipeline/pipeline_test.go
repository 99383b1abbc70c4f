package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testVault(t *testing.T, files map[string]string) storage.Provider {
	t.Helper()
	dir := t.TempDir()
	for path, content := range files {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestBuild_FullPass(t *testing.T) {
	store := testVault(t, map[string]string{
		"a.md": "---\ntitle: Alpha\n---\nSee [[b]] for more.\n",
		"b.md": "# Beta\nBack to [[a]].\n",
		"projects.base": "filters:\n  and:\n    - 'file.ext == \"md\"'\nviews:\n  - type: table\n    name: All\n",
	})

	snap, err := Build(context.Background(), store, testLogger(), 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(snap.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(snap.Documents))
	}
	if len(snap.Notes) != 2 || snap.Notes[0].Path != "a.md" {
		t.Errorf("notes order = %v, want path-sorted", snap.Notes)
	}

	doc := snap.Document("a.md")
	if doc == nil {
		t.Fatal("a.md missing from snapshot")
	}
	if want := "See [b](/b) for more.\n"; doc.Body != want {
		t.Errorf("body = %q, want %q", doc.Body, want)
	}
	if len(doc.Links) != 1 || doc.Links[0].Target != "b" {
		t.Errorf("links = %+v", doc.Links)
	}

	if _, ok := snap.Definition("projects"); !ok {
		t.Error("bare name should resolve to projects.base")
	}
	if _, ok := snap.Definition("projects.base"); !ok {
		t.Error("exact name should resolve")
	}

	// Stem links resolve to graph edges.
	if len(snap.Graph.Nodes) != 2 || len(snap.Graph.Links) != 2 {
		t.Errorf("graph = %d nodes %d links, want 2/2", len(snap.Graph.Nodes), len(snap.Graph.Links))
	}
}

func TestBuild_InlineBaseBlock(t *testing.T) {
	store := testVault(t, map[string]string{
		"dash.md": "# Dash\n```base\nviews:\n  - type: list\n    name: Quick\n```\nafter\n",
	})

	snap, err := Build(context.Background(), store, testLogger(), 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	doc := snap.Document("dash.md")
	if doc == nil {
		t.Fatal("dash.md missing")
	}
	if len(doc.Blocks) != 1 || doc.Blocks[0] != "dash.md#inline-0" {
		t.Fatalf("blocks = %v", doc.Blocks)
	}
	def, ok := snap.Definition("dash.md#inline-0")
	if !ok {
		t.Fatal("inline definition not registered")
	}
	if len(def.Views) != 1 || def.Views[0].Name != "Quick" {
		t.Errorf("views = %+v", def.Views)
	}
}

func TestBuild_BadBaseIsDiagnosticNotFatal(t *testing.T) {
	store := testVault(t, map[string]string{
		"ok.md":       "fine\n",
		"broken.base": "views:\n  - type: spreadsheet\n",
	})

	snap, err := Build(context.Background(), store, testLogger(), 2)
	if err != nil {
		t.Fatalf("Build should not fail on a bad definition: %v", err)
	}
	if len(snap.Documents) != 1 {
		t.Errorf("documents = %d, want 1", len(snap.Documents))
	}
	if len(snap.Definitions) != 0 {
		t.Errorf("definitions = %d, want 0", len(snap.Definitions))
	}
	if len(snap.Diagnostics) != 1 || snap.Diagnostics[0].Path != "broken.base" {
		t.Errorf("diagnostics = %+v", snap.Diagnostics)
	}
}

func TestSnapshot_ResolveView(t *testing.T) {
	store := testVault(t, map[string]string{
		"notes/x.md": "---\nstatus: open\n---\nbody\n",
		"notes/y.md": "---\nstatus: done\n---\nbody\n",
		"open.base":  "filters:\n  and:\n    - 'status == \"open\"'\nviews:\n  - type: table\n    name: Open\n",
	})

	snap, err := Build(context.Background(), store, testLogger(), 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	res, err := snap.ResolveView("open", "Open")
	if err != nil {
		t.Fatalf("ResolveView: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Note.Path != "notes/x.md" {
		t.Errorf("rows = %+v", res.Rows)
	}

	if _, err := snap.ResolveView("nope", ""); err == nil {
		t.Error("expected error for unknown base")
	}
}

func TestManager_RebuildSwapsSnapshot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "one.md"), []byte("# One\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(store, testLogger(), 2)
	if m.Current() != nil {
		t.Fatal("expected nil snapshot before first rebuild")
	}

	first, err := m.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if m.Current() != first {
		t.Error("Current should return the published snapshot")
	}

	if err := os.WriteFile(filepath.Join(dir, "two.md"), []byte("# Two\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := m.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(second.Documents) != 2 {
		t.Errorf("documents = %d, want 2", len(second.Documents))
	}
	// The first snapshot is untouched by the rebuild.
	if len(first.Documents) != 1 {
		t.Errorf("old snapshot mutated: %d documents", len(first.Documents))
	}
}

func TestManager_RunDebounces(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "n.md"), []byte("# N\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(store, testLogger(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx, 20*time.Millisecond)
		close(done)
	}()

	// A burst of notifications coalesces into one pass.
	m.Notify()
	m.Notify()
	m.Notify()

	deadline := time.Now().Add(2 * time.Second)
	for m.Current() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Current() == nil {
		t.Fatal("Run never published a snapshot")
	}

	cancel()
	<-done
}

func TestManager_NotifyAfterFireGetsFullWindow(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "n.md"), []byte("# N\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(store, testLogger(), 1)
	var builds atomic.Int32
	m.OnRebuild = func(*Snapshot) { builds.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx, 250*time.Millisecond)
		close(done)
	}()

	m.Notify()
	waitForBuilds(t, &builds, 1)

	// A notification arriving after the previous timer fired must wait
	// out a full window, not inherit a stale tick.
	m.Notify()
	time.Sleep(50 * time.Millisecond)
	if got := builds.Load(); got != 1 {
		t.Fatalf("builds = %d before the window elapsed, want 1", got)
	}
	waitForBuilds(t, &builds, 2)

	cancel()
	<-done
}

func waitForBuilds(t *testing.T, builds *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for builds.Load() < want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := builds.Load(); got < want {
		t.Fatalf("builds = %d, want %d", got, want)
	}
}
