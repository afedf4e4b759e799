// Package router moves processed PDFs to their final location:
// success/review into a year-scoped checked folder, everything else into
// the flat manual-review folder.
package router

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/akuhnert/invoiceflow/constants"
)

const checkedPrefix = "checked_"

// Router owns the two destination locations. Routing is the last step for
// a document and is unconditional.
type Router struct {
	OutputBase string // year folders are created under here
	ManualDir  string
	Logger     *slog.Logger
}

func New(outputBase, manualDir string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{OutputBase: outputBase, ManualDir: manualDir, Logger: logger}
}

// YearDir is the success location for a given invoice year.
func (r *Router) YearDir(year int) string {
	return filepath.Join(r.OutputBase, fmt.Sprintf("RG %d Ersatzteile RepRG", year))
}

// RouteSuccess moves a successfully processed PDF into the year folder with
// a checked_ prefix. On name collision a numeric disambiguator is inserted
// until a free name is found.
func (r *Router) RouteSuccess(path string, year int) (string, error) {
	destDir := r.YearDir(year)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create year dir: %w", err)
	}

	name := filepath.Base(path)
	dest := filepath.Join(destDir, checkedPrefix+name)
	for counter := 1; exists(dest); counter++ {
		dest = filepath.Join(destDir, fmt.Sprintf("%s%d_%s", checkedPrefix, counter, name))
	}

	if err := move(path, dest); err != nil {
		return "", err
	}
	r.Logger.Info("router.checked", "from", name, "to", dest)
	return dest, nil
}

// RouteManual moves a PDF that needs human attention into the flat manual
// folder, same collision policy.
func (r *Router) RouteManual(path string) (string, error) {
	if err := os.MkdirAll(r.ManualDir, 0o755); err != nil {
		return "", fmt.Errorf("create manual dir: %w", err)
	}

	name := filepath.Base(path)
	dest := filepath.Join(r.ManualDir, name)
	for counter := 1; exists(dest); counter++ {
		dest = filepath.Join(r.ManualDir, fmt.Sprintf("%d_%s", counter, name))
	}

	if err := move(path, dest); err != nil {
		return "", err
	}
	r.Logger.Info("router.manual", "from", name, "to", dest)
	return dest, nil
}

// ListManual returns the PDFs waiting in the manual folder, sorted by name.
// Used by the reporting front-end, not by the pipeline.
func (r *Router) ListManual() ([]string, error) {
	entries, err := os.ReadDir(r.ManualDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manual dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !constants.IsPDF(filepath.Ext(e.Name())) {
			continue
		}
		paths = append(paths, filepath.Join(r.ManualDir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// move renames, falling back to copy+remove across filesystem boundaries.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return os.Remove(src)
}
