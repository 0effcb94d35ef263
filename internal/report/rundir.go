// Package report allocates run directories and writes the aggregation
// artifacts into them.
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// maxSuffix bounds how many same-day runs can be allocated.
const maxSuffix = 1000

// RunDir is a freshly created, never reused output directory.
type RunDir struct {
	Path string
	Name string

	written []string
}

// NewRunDir creates base/YYYY-MM-DD for now's calendar date, or the first
// free base/YYYY-MM-DD_N (N >= 2) when earlier runs already claimed it.
// Claims use a non-recursive mkdir so two concurrent runs can never share
// a directory.
func NewRunDir(base string, now time.Time) (*RunDir, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", base, err)
	}

	stem := domain.FormatDate(now)
	for n := 1; n <= maxSuffix; n++ {
		name := stem
		if n > 1 {
			name = fmt.Sprintf("%s_%d", stem, n)
		}
		path := filepath.Join(base, name)

		err := os.Mkdir(path, 0o755)
		if err == nil {
			return &RunDir{Path: path, Name: name}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("report: create run directory %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("report: more than %d runs for %s under %s", maxSuffix, stem, base)
}

// Files lists the artifacts written so far, in write order.
func (r *RunDir) Files() []string {
	return append([]string(nil), r.written...)
}

// create opens a new artifact file. Existing files are never truncated.
func (r *RunDir) create(name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(r.Path, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("report: create %s: %w", name, err)
	}
	r.written = append(r.written, name)
	return f, nil
}
