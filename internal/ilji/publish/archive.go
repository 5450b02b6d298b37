package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Archive writes each entry to {Dir}/{date}_{label}.md. A second entry for
// the same date and label replaces the file.
type Archive struct {
	Dir string
	// Now stamps the footer. Default: time.Now.
	Now func() time.Time
}

// NewArchive returns an Archive rooted at dir, creating it if needed.
func NewArchive(dir string) (*Archive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive: directory is required: %w", ErrNotConfigured)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", dir, err)
	}
	return &Archive{Dir: dir, Now: time.Now}, nil
}

// Name implements Adapter.
func (a *Archive) Name() string { return "archive" }

// Path is the file e is written to.
func (a *Archive) Path(e Entry) string {
	return filepath.Join(a.Dir, e.Date+"_"+fileLabel(e.Label)+".md")
}

// CreateRecord implements Adapter.
func (a *Archive) CreateRecord(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", Title(e.Label, e.Date))
	b.WriteString(e.Body)
	fmt.Fprintf(&b, "\n\n---\n*저장 시각: %s*\n", now().Format(time.TimeOnly))

	path := a.Path(e)
	tmp, err := os.CreateTemp(a.Dir, ".entry-*.md")
	if err != nil {
		return fmt.Errorf("archive: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("archive: rename to %s: %w", path, err)
	}
	return nil
}

// fileLabel makes a room label safe as a file name component.
func fileLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "대화"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r), unicode.IsSpace(r):
			return '_'
		}
		return r
	}, label)
}
