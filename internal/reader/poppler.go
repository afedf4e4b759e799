package reader

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	log *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		r.log.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		r.log.Debug("exec ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// PopplerEngine backs the reader hooks with the poppler utilities:
// pdftotext for page texts and pdftoppm for page rasterization.
type PopplerEngine struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	DPI       int    // rasterization DPI, default 300
	MaxPages  int    // rasterization page cap, 0 = no limit

	runner Runner
	logger *slog.Logger
}

func NewPopplerEngine(logger *slog.Logger) *PopplerEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &PopplerEngine{
		Pdftotext: "pdftotext",
		Pdftoppm:  "pdftoppm",
		DPI:       300,
		runner:    execRunner{log: logger},
		logger:    logger,
	}
}

// ExtractText returns the text of every page, in order.
// pdftotext separates pages with a form feed.
func (e *PopplerEngine) ExtractText(ctx context.Context, path string) ([]string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	return strings.Split(string(out), "\f"), nil
}

// Rasterize renders every page to PNG and returns them base64-encoded.
func (e *PopplerEngine) Rasterize(ctx context.Context, path string) ([]string, error) {
	tmpDir, err := os.MkdirTemp("", "invoiceflow-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("reader.tmpdir_cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.Pdftoppm, "-r", fmt.Sprintf("%d", e.DPI), "-png", path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.MaxPages > 0 && len(matches) > e.MaxPages {
		matches = matches[:e.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	images := make([]string, 0, len(matches))
	for _, img := range matches {
		data, err := os.ReadFile(img)
		if err != nil {
			return nil, fmt.Errorf("read rendered page %s: %w", filepath.Base(img), err)
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}
	return images, nil
}
