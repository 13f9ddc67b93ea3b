package note

import (
	"fmt"
	"strings"
)

// MaxTextSize is the maximum note text size in bytes.
const MaxTextSize = 163840 // 160KB

// Note is the note aggregate. The embedding, once computed, is attached whole:
// a note is never stored with a partially written vector.
type Note struct {
	id        string
	text      string
	title     string
	url       string
	timestamp int64
	tags      []string
	vector    []float32
}

// New validates and creates a Note. Text must be non-empty after trimming;
// timestamp is epoch millis.
func New(id, text, title, url string, timestamp int64, tags []string) (Note, error) {
	if id == "" {
		return Note{}, fmt.Errorf("note ID is required")
	}
	if len(id) > 256 {
		return Note{}, fmt.Errorf("note ID too long (max 256)")
	}
	if strings.TrimSpace(text) == "" {
		return Note{}, fmt.Errorf("text is required")
	}
	if len(text) > MaxTextSize {
		return Note{}, fmt.Errorf("text too large (max %d bytes)", MaxTextSize)
	}
	if timestamp < 0 {
		return Note{}, fmt.Errorf("timestamp must not be negative")
	}

	return Note{
		id:        id,
		text:      text,
		title:     title,
		url:       url,
		timestamp: timestamp,
		tags:      cloneTags(tags),
	}, nil
}

// Reconstruct creates a Note without validation (storage hydration).
func Reconstruct(id, text, title, url string, timestamp int64, tags []string, vector []float32) Note {
	return Note{id: id, text: text, title: title, url: url, timestamp: timestamp, tags: tags, vector: vector}
}

// ID returns the note identifier.
func (n Note) ID() string { return n.id }

// Text returns the note body.
func (n Note) Text() string { return n.text }

// Title returns the note title.
func (n Note) Title() string { return n.title }

// URL returns the source page URL, if any.
func (n Note) URL() string { return n.url }

// Timestamp returns the creation time in epoch millis.
func (n Note) Timestamp() int64 { return n.timestamp }

// Tags returns the ordered tag sequence.
func (n Note) Tags() []string { return n.tags }

// Vector returns the embedding vector, or nil if not yet computed.
func (n Note) Vector() []float32 { return n.vector }

// SetVector attaches the embedding in place.
func (n *Note) SetVector(v []float32) { n.vector = v }

func cloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	c := make([]string, len(tags))
	copy(c, tags)
	return c
}
