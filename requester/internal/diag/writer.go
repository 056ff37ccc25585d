// Package diag records each feed attempt as a markdown file with YAML
// frontmatter so failed or surprising responses can be inspected later.
//
// Files are written atomically (write .tmp then rename) under
// <dir>/<source_id>/<timestamp>_<request_id>[_failed].md.
package diag

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/newsnexus/idgen"
)

// Report describes one feed attempt.
type Report struct {
	SourceID      string    `yaml:"source_id"`
	RequestID     string    `yaml:"request_id"`
	Kind          string    `yaml:"kind,omitempty"` // "fetch" or "ingest"
	URL           string    `yaml:"url"`
	Status        string    `yaml:"status"`
	Failure       bool      `yaml:"is_failure"`
	StatusCode    int       `yaml:"status_code,omitempty"`
	CountReceived int       `yaml:"count_received"`
	Error         string    `yaml:"error,omitempty"`
	At            time.Time `yaml:"at"`
	// Payload is the raw response body or a JSON dump of the results.
	Payload []byte `yaml:"-"`
}

// Reporter accepts attempt reports. Implementations must not fail the
// caller: errors are handled internally.
type Reporter interface {
	Report(ctx context.Context, r Report)
}

// Nop discards reports.
type Nop struct{}

func (Nop) Report(context.Context, Report) {}

// Writer writes reports to a directory tree.
type Writer struct {
	dir    string
	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

// NewWriter creates a Writer rooted at dir. Directories are created on
// first write.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, newID: idgen.Default, now: time.Now, logger: logger}
}

// Report writes r and logs any failure.
func (w *Writer) Report(ctx context.Context, r Report) {
	path, err := w.Write(ctx, r)
	if err != nil {
		w.logger.Error("diag: write report failed", "source_id", r.SourceID, "request_id", r.RequestID, "error", err)
		return
	}
	w.logger.Debug("diag: report written", "path", path, "is_failure", r.Failure)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Write creates the report file and returns its path.
func (w *Writer) Write(_ context.Context, r Report) (string, error) {
	if r.At.IsZero() {
		r.At = w.now()
	}
	r.At = r.At.UTC()
	sourceDir := sanitize(r.SourceID, "unknown-source")
	reqID := sanitize(r.RequestID, w.newID())

	dir := filepath.Join(w.dir, sourceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("diag: mkdir %s: %w", dir, err)
	}

	name := r.At.Format("20060102T150405Z") + "_" + reqID
	if r.Kind != "" {
		name += "_" + sanitize(r.Kind, "report")
	}
	if r.Failure {
		name += "_failed"
	}
	target := filepath.Join(dir, name+".md")
	tmp := target + ".tmp"

	front, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("diag: frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	buf.Write(r.Payload)
	if len(r.Payload) > 0 && r.Payload[len(r.Payload)-1] != '\n' {
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("diag: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("diag: rename: %w", err)
	}
	return target, nil
}

func sanitize(s, fallback string) string {
	s = unsafeName.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return fallback
	}
	return s
}
