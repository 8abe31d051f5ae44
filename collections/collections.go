// Package collections defines the content collections managed by the admin
// panel and validates entities against them.
package collections

import (
	"slices"
	"strings"
)

// DataType is the storage type of a property.
type DataType string

const (
	String    DataType = "string"
	Number    DataType = "number"
	Boolean   DataType = "boolean"
	Date      DataType = "date"
	Array     DataType = "array"
	Map       DataType = "map"
	Reference DataType = "reference"
)

// EnumValue is one allowed value of an enumerated string property.
type EnumValue struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Storage binds a string property to uploaded files.
type Storage struct {
	Path          string   `json:"path"`
	AcceptedFiles []string `json:"accepted_files,omitempty"`
	CacheControl  string   `json:"cache_control,omitempty"`
	// StoreURL stores the public URL in the entity instead of the object key.
	StoreURL bool `json:"store_url"`
	// MaxImageWidth downsizes uploaded raster images wider than this.
	MaxImageWidth int `json:"max_image_width,omitempty"`
}

// Property describes one field of a collection.
type Property struct {
	Key             string      `json:"key"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	DataType        DataType    `json:"data_type"`
	Required        bool        `json:"required,omitempty"`
	RequiredMessage string      `json:"required_message,omitempty"`
	Min             *float64    `json:"min,omitempty"`
	Max             *float64    `json:"max,omitempty"`
	Matches         string      `json:"matches,omitempty"`
	MatchesMessage  string      `json:"matches_message,omitempty"`
	Rules           string      `json:"rules,omitempty"`
	Enum            []EnumValue `json:"enum,omitempty"`
	Default         any         `json:"default,omitempty"`
	DefaultNow      bool        `json:"default_now,omitempty"`
	Multiline       bool        `json:"multiline,omitempty"`
	RichText        bool        `json:"rich_text,omitempty"`
	Disabled        bool        `json:"disabled,omitempty"`
	ReferencePath   string      `json:"reference_path,omitempty"`
	Of              *Property   `json:"of,omitempty"`
	Properties      []Property  `json:"properties,omitempty"`
	Storage         *Storage    `json:"storage,omitempty"`
}

// EnumKeys returns the allowed keys of an enumerated property.
func (p Property) EnumKeys() []string {
	keys := make([]string, len(p.Enum))
	for i, e := range p.Enum {
		keys[i] = e.Key
	}
	return keys
}

// Collection is a named set of documents sharing a schema.
type Collection struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SingularName string     `json:"singular_name,omitempty"`
	Path         string     `json:"path"`
	Properties   []Property `json:"properties"`
}

// Property looks up a top-level property by key.
func (c Collection) Property(key string) (Property, bool) {
	for _, p := range c.Properties {
		if p.Key == key {
			return p, true
		}
	}
	return Property{}, false
}

// RichTextFields returns the keys of properties edited with the rich-text
// editor, whose HTML may embed uploaded images.
func (c Collection) RichTextFields() []string {
	var keys []string
	for _, p := range c.Properties {
		if p.RichText {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// Entity is a document's field values keyed by property key.
type Entity map[string]any

var registry = []Collection{
	Articles,
	Attendance,
	Banners,
	Classes,
	Courses,
	Gallery,
	Testimonials,
	Users,
}

// All returns every collection in menu order.
func All() []Collection {
	return slices.Clone(registry)
}

// Get returns the collection with the given id.
func Get(id string) (Collection, bool) {
	id = strings.TrimSpace(strings.ToLower(id))
	for _, c := range registry {
		if c.ID == id {
			return c, true
		}
	}
	return Collection{}, false
}

// AcceptsMIME reports whether a file of the given MIME type may be stored in
// s. Patterns like "image/*" match any subtype. No patterns accepts anything.
func AcceptsMIME(s *Storage, mime string) bool {
	if s == nil || len(s.AcceptedFiles) == 0 {
		return true
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	for _, pattern := range s.AcceptedFiles {
		pattern = strings.ToLower(pattern)
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(mime, prefix+"/") {
				return true
			}
			continue
		}
		if pattern == mime {
			return true
		}
	}
	return false
}

func bound(f float64) *float64 { return &f }
