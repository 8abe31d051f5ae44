package editor

import (
	"fmt"
	"io"
	"path"
	"strings"
)

// DefaultFolder is where embedded article images are stored.
const DefaultFolder = "articles/images"

// File is an image handed to the controller by a paste, drop or file picker.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	Body     io.Reader
}

// IsImage reports whether the declared MIME type is an image type.
func (f File) IsImage() bool {
	mt := strings.ToLower(strings.TrimSpace(f.MIMEType))
	return strings.HasPrefix(mt, "image/")
}

// StorageKey builds "<folder>/<id>_<basename>". The id makes keys unique across
// concurrent uploads of identically named files.
func StorageKey(folder, id, name string) string {
	return path.Join(folder, id+"_"+baseName(name))
}

func baseName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}

// Trigger identifies which entry point started an upload.
type Trigger int

const (
	TriggerPaste Trigger = iota
	TriggerDrop
	TriggerPicker
)

func (t Trigger) String() string {
	switch t {
	case TriggerPaste:
		return "paste"
	case TriggerDrop:
		return "drop"
	case TriggerPicker:
		return "picker"
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseTrigger parses "paste", "drop" or "picker". Empty input means picker.
func ParseTrigger(s string) (Trigger, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paste":
		return TriggerPaste, nil
	case "drop":
		return TriggerDrop, nil
	case "picker", "toolbar", "":
		return TriggerPicker, nil
	}
	return 0, fmt.Errorf("editor: unknown trigger %q", s)
}
