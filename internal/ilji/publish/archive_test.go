package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestArchive_WritesDailyFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	a, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	a.Now = func() time.Time { return time.Date(2026, 2, 18, 21, 30, 5, 0, time.UTC) }

	e := Entry{Label: "운동", Date: "2026-02-18", Body: "스쿼트 100kg"}
	if err := a.CreateRecord(context.Background(), e); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	path := filepath.Join(dir, "2026-02-18_운동.md")
	if a.Path(e) != path {
		t.Errorf("Path = %q, want %q", a.Path(e), path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "# 운동 일지 - 2026-02-18\n\n스쿼트 100kg\n\n---\n*저장 시각: 21:30:05*\n"
	if string(got) != want {
		t.Errorf("file =\n%q\nwant\n%q", got, want)
	}
}

func TestArchive_ReplacesSameDay(t *testing.T) {
	a, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	e := Entry{Label: "식단", Date: "2026-02-18", Body: "first"}
	if err := a.CreateRecord(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	e.Body = "second"
	if err := a.CreateRecord(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("files = %d, want 1 (no temp files left)", len(entries))
	}
	got, _ := os.ReadFile(a.Path(e))
	if want := "# 식단 일지 - 2026-02-18\n\nsecond"; string(got[:len(want)]) != want {
		t.Errorf("file = %q", got)
	}
}

func TestFileLabel(t *testing.T) {
	tests := map[string]string{
		"운동":       "운동",
		"":         "대화",
		"  ":       "대화",
		"a/b":      "a_b",
		"work out": "work_out",
		`x\y:z?`:   "x_y_z_",
	}
	for in, want := range tests {
		if got := fileLabel(in); got != want {
			t.Errorf("fileLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewArchive_RequiresDir(t *testing.T) {
	if _, err := NewArchive(""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
