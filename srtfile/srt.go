// Package srtfile implements reading and writing of SubRip (.srt) subtitle
// files.
//
// Parsing is delegated to go-astisub; serialization is done by hand because
// astisub renumbers items sequentially on write, while translated documents
// must keep the exact indices and timings of the source file. Only the text
// of an entry is ever rewritten.
package srtfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
)

// Entry is one timed subtitle caption: a stable 1-based index, a start/end
// timestamp pair, and one or more display lines joined by newlines.
type Entry struct {
	Index   int
	StartAt time.Duration
	EndAt   time.Duration
	Text    string
}

// Document is the ordered sequence of entries of a single subtitle file.
type Document struct {
	Entries []*Entry
}

// Open parses the file at path as SRT. Entries keep the indices from the
// file; an entry without one gets its 1-based position.
func Open(path string) (*Document, error) {
	subs, err := astisub.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing subtitle file: %w", err)
	}

	doc := &Document{Entries: make([]*Entry, 0, len(subs.Items))}
	for i, item := range subs.Items {
		lines := make([]string, len(item.Lines))
		for j, line := range item.Lines {
			lines[j] = line.String()
		}
		index := item.Index
		if index == 0 {
			index = i + 1
		}
		doc.Entries = append(doc.Entries, &Entry{
			Index:   index,
			StartAt: item.StartAt,
			EndAt:   item.EndAt,
			Text:    strings.Join(lines, "\n"),
		})
	}

	if len(doc.Entries) == 0 {
		return nil, fmt.Errorf("no subtitle entries found in %s", path)
	}
	return doc, nil
}

// Write serializes the document to path in SRT form:
//
//	<index>
//	HH:MM:SS,mmm --> HH:MM:SS,mmm
//	<text>
//	<blank line>
func (d *Document) Write(path string) error {
	var b strings.Builder
	for _, e := range d.Entries {
		fmt.Fprintf(&b, "%d\n", e.Index)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(e.StartAt), formatTimestamp(e.EndAt))
		b.WriteString(e.Text)
		b.WriteString("\n\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing subtitle file: %w", err)
	}
	return nil
}

// OutputPath derives the destination for a translated copy of input by
// inserting "_translated" before the extension: "movie.srt" becomes
// "movie_translated.srt". The extension keeps its original case.
func OutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_translated" + ext
}

// formatTimestamp renders a duration as an SRT timestamp (HH:MM:SS,mmm).
func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
