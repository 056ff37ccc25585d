package diag

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWrite_FrontmatterAndBody(t *testing.T) {
	// WHAT: A report becomes <source>/<ts>_<req>_failed.md with parseable frontmatter.
	// WHY: Operators grep these files when a feed starts failing.
	dir := t.TempDir()
	w := NewWriter(dir, quiet())
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := w.Write(context.Background(), Report{
		SourceID:  "src-1",
		RequestID: "req-9",
		URL:       "https://news.google.com/rss/search?q=a",
		Status:    "error",
		Failure:   true,
		Error:     `parse feed: "bad"`,
		At:        at,
		Payload:   []byte("<<<garbled"),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "src-1", "20240102T030405Z_req-9_failed.md")
	if path != want {
		t.Fatalf("path: got %s, want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.SplitN(string(data), "---\n", 3)
	if len(parts) != 3 {
		t.Fatalf("no frontmatter: %q", data)
	}
	var got Report
	if err := yaml.Unmarshal([]byte(parts[1]), &got); err != nil {
		t.Fatalf("frontmatter yaml: %v", err)
	}
	if got.RequestID != "req-9" || !got.Failure || got.Error != `parse feed: "bad"` {
		t.Fatalf("frontmatter: got %+v", got)
	}
	if !strings.Contains(parts[2], "<<<garbled") {
		t.Fatalf("body: got %q", parts[2])
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("tmp file left behind")
	}
}

func TestWrite_SuccessHasNoSuffix(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, quiet())
	path, err := w.Write(context.Background(), Report{SourceID: "s", RequestID: "r", Status: "success"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasSuffix(path, "_failed.md") {
		t.Fatalf("success report marked failed: %s", path)
	}
}

func TestWrite_KindInName(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, quiet())
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	fetch, _ := w.Write(context.Background(), Report{SourceID: "s", RequestID: "r", Kind: "fetch", At: at})
	ingest, _ := w.Write(context.Background(), Report{SourceID: "s", RequestID: "r", Kind: "ingest", At: at})
	if fetch == ingest {
		t.Fatalf("fetch and ingest reports collide: %s", fetch)
	}
	if filepath.Base(ingest) != "20240102T030405Z_r_ingest.md" {
		t.Fatalf("name: got %s", filepath.Base(ingest))
	}
}

func TestWrite_SanitizesNames(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, quiet())
	path, err := w.Write(context.Background(), Report{SourceID: "../../etc", RequestID: "a/b"})
	if err != nil {
		t.Fatal(err)
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Fatalf("escaped diagnostics dir: %s", path)
	}
}

func TestReport_NeverPanicsOnError(t *testing.T) {
	// WHAT: An unwritable directory is logged, not returned or panicked.
	// WHY: Diagnostics must never break the ingestion pipeline.
	file := filepath.Join(t.TempDir(), "blocker")
	os.WriteFile(file, []byte("x"), 0o644)

	var logs bytes.Buffer
	w := NewWriter(filepath.Join(file, "sub"), slog.New(slog.NewTextHandler(&logs, nil)))
	w.Report(context.Background(), Report{SourceID: "s", RequestID: "r"})
	if !strings.Contains(logs.String(), "diag: write report failed") {
		t.Fatalf("expected error log, got %q", logs.String())
	}
}
