// Package publish pushes journal entries to external services: a Notion
// database, a Google calendar and a local Markdown archive.
//
// Publishing is best effort. Adapter failures are logged and reported per
// adapter in an Outcome; they never fail the save that produced the entry.
package publish

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bdobrica/ilji/internal/ilji/journal"
)

// Entry is one dated journal page handed to every adapter.
type Entry struct {
	Key   string
	Label string
	Mode  string
	// Date is YYYY-MM-DD.
	Date  string
	Title string
	Body  string
	// Record is set when the entry came from structured extraction or
	// date sectioning.
	Record *journal.Record
}

// Digest identifies the entry's published content. Pushing an entry whose
// digest an adapter already accepted for the same key is a repeat.
func (e Entry) Digest() string {
	h := sha256.New()
	for _, part := range []string{e.Date, e.Title, e.Body} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Title formats the page title for label on date.
func Title(label, date string) string {
	if label == "" {
		label = "대화"
	}
	return label + " 일지 - " + date
}

// EntriesFrom turns a summary result into entries: one per record for
// record results, one dated today for text results, none for empty ones.
func EntriesFrom(key, label, modeName string, res journal.Result, now time.Time) []Entry {
	switch res.Kind {
	case journal.KindRecords:
		out := make([]Entry, 0, len(res.Records))
		for i := range res.Records {
			r := res.Records[i]
			out = append(out, Entry{
				Key: key, Label: label, Mode: modeName,
				Date:   r.Date,
				Title:  Title(label, r.Date),
				Body:   journal.Render(r),
				Record: &r,
			})
		}
		return out
	case journal.KindText:
		date := now.Format(time.DateOnly)
		return []Entry{{
			Key: key, Label: label, Mode: modeName,
			Date:  date,
			Title: Title(label, date),
			Body:  res.Text,
		}}
	default:
		return nil
	}
}
