package editor

import (
	"fmt"
	"html"
	"sync"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// MarkerID identifies a placeholder within a document.
type MarkerID string

// Surface is the document an upload controller writes into. Positions are
// byte offsets into the document's HTML and must fall on a character
// boundary.
type Surface interface {
	// InsertPlaceholder inserts markup at pos and tracks it as a marker.
	InsertPlaceholder(pos int, markup string) (MarkerID, error)
	// UpdatePlaceholder replaces the markup of a live marker.
	UpdatePlaceholder(id MarkerID, markup string) error
	// ReplaceWithImage swaps the marker for an <img> reference in one step,
	// at the marker's current position.
	ReplaceWithImage(id MarkerID, url, alt string) error
	// RemoveMarker deletes the marker and its markup.
	RemoveMarker(id MarkerID) error
}

type span struct {
	start, end int
}

// HTMLDocument is an in-memory HTML content stream that tracks placeholder
// markers as ranges. Every edit shifts the markers after it, so a marker
// always resolves to its current position regardless of concurrent edits.
type HTMLDocument struct {
	mu      sync.Mutex
	content string
	markers map[MarkerID]*span
}

// NewHTMLDocument returns a document holding content.
func NewHTMLDocument(content string) *HTMLDocument {
	return &HTMLDocument{content: content, markers: make(map[MarkerID]*span)}
}

// String returns the current content, placeholders included.
func (d *HTMLDocument) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// Len returns the content length in bytes.
func (d *HTMLDocument) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.content)
}

// MarkerCount returns the number of live placeholders.
func (d *HTMLDocument) MarkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.markers)
}

// MarkerRange returns the current [start,end) range of a marker.
func (d *HTMLDocument) MarkerRange(id MarkerID) (int, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.markers[id]
	if !ok {
		return 0, 0, false
	}
	return s.start, s.end, true
}

// Insert is a user edit inserting text at pos.
func (d *HTMLDocument) Insert(pos int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.insert(pos, text)
}

func (d *HTMLDocument) insert(pos int, text string) error {
	if err := d.checkInsertPos(pos); err != nil {
		return err
	}
	d.splice(pos, pos, text, "")
	return nil
}

// Delete is a user edit removing n bytes at pos. A range touching a
// placeholder is widened to cover it and the placeholder is dropped.
func (d *HTMLDocument) Delete(pos, n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleteRange(pos, n)
}

func (d *HTMLDocument) deleteRange(pos, n int) error {
	if pos < 0 || n < 0 || pos+n > len(d.content) {
		return ErrOutOfRange
	}
	if !d.onBoundary(pos) || !d.onBoundary(pos+n) {
		return ErrOutOfRange
	}
	if n == 0 {
		return nil
	}
	start, end := pos, pos+n
	for widened := true; widened; {
		widened = false
		for _, s := range d.markers {
			if s.start < end && s.end > start && (s.start < start || s.end > end) {
				start, end = min(start, s.start), max(end, s.end)
				widened = true
			}
		}
	}
	for id, s := range d.markers {
		if s.start >= start && s.end <= end && s.end > s.start {
			delete(d.markers, id)
		}
	}
	d.splice(start, end, "", "")
	return nil
}

// InsertPlaceholder implements Surface.
func (d *HTMLDocument) InsertPlaceholder(pos int, markup string) (MarkerID, error) {
	if markup == "" {
		return "", fmt.Errorf("editor: empty placeholder markup")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkInsertPos(pos); err != nil {
		return "", err
	}
	id := MarkerID(ulid.Make().String())
	d.splice(pos, pos, markup, "")
	d.markers[id] = &span{start: pos, end: pos + len(markup)}
	return id, nil
}

// UpdatePlaceholder implements Surface.
func (d *HTMLDocument) UpdatePlaceholder(id MarkerID, markup string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.markers[id]
	if !ok {
		return ErrMarkerNotFound
	}
	d.splice(s.start, s.end, markup, id)
	s.end = s.start + len(markup)
	return nil
}

// ReplaceWithImage implements Surface.
func (d *HTMLDocument) ReplaceWithImage(id MarkerID, url, alt string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.markers[id]
	if !ok {
		return ErrMarkerNotFound
	}
	img := fmt.Sprintf(`<img src="%s" alt="%s">`, html.EscapeString(url), html.EscapeString(alt))
	delete(d.markers, id)
	d.splice(s.start, s.end, img, id)
	return nil
}

// RemoveMarker implements Surface.
func (d *HTMLDocument) RemoveMarker(id MarkerID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.markers[id]
	if !ok {
		return ErrMarkerNotFound
	}
	delete(d.markers, id)
	d.splice(s.start, s.end, "", id)
	return nil
}

func (d *HTMLDocument) checkInsertPos(pos int) error {
	if pos < 0 || pos > len(d.content) || !d.onBoundary(pos) {
		return ErrOutOfRange
	}
	for _, s := range d.markers {
		if pos > s.start && pos < s.end {
			return ErrInsideMarker
		}
	}
	return nil
}

// onBoundary reports whether pos starts a character. Must hold d.mu.
func (d *HTMLDocument) onBoundary(pos int) bool {
	return pos == len(d.content) || utf8.RuneStart(d.content[pos])
}

// InsertUTF16 is Insert with pos counted in UTF-16 code units, the unit of
// JavaScript string indices.
func (d *HTMLDocument) InsertUTF16(pos int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.byteOffset(pos)
	if err != nil {
		return err
	}
	return d.insert(b, text)
}

// DeleteUTF16 is Delete with pos and n counted in UTF-16 code units.
func (d *HTMLDocument) DeleteUTF16(pos, n int) error {
	if n < 0 {
		return ErrOutOfRange
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	start, err := d.byteOffset(pos)
	if err != nil {
		return err
	}
	end, err := d.byteOffset(pos + n)
	if err != nil {
		return err
	}
	return d.deleteRange(start, end-start)
}

// ByteOffset converts a position in UTF-16 code units to a byte offset.
// Positions inside a surrogate pair are out of range.
func (d *HTMLDocument) ByteOffset(units int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byteOffset(units)
}

func (d *HTMLDocument) byteOffset(units int) (int, error) {
	if units < 0 {
		return 0, ErrOutOfRange
	}
	n := 0
	for i, r := range d.content {
		if n == units {
			return i, nil
		}
		if n > units {
			return 0, ErrOutOfRange
		}
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	if n == units {
		return len(d.content), nil
	}
	return 0, ErrOutOfRange
}

// splice replaces content[start:end] with repl and shifts every marker other
// than self that starts at or after end. Must hold d.mu.
func (d *HTMLDocument) splice(start, end int, repl string, self MarkerID) {
	d.content = d.content[:start] + repl + d.content[end:]
	delta := len(repl) - (end - start)
	if delta == 0 {
		return
	}
	for id, s := range d.markers {
		if id == self {
			continue
		}
		if s.start >= end {
			s.start += delta
			s.end += delta
		}
	}
}
