// Package models defines the domain types for Ansuz.
package models

import "time"

// Note is an immutable snapshot of one vault document for the duration of
// a transform/query pass. It is re-created on the next vault scan.
type Note struct {
	Path        string         `json:"path"`
	Title       string         `json:"title,omitempty"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Body        string         `json:"body"`
	Links       []string       `json:"links,omitempty"` // resolved outgoing targets
	Meta        FileMeta       `json:"file"`
}

// FileMeta is the derived file metadata exposed through the file.<x>
// expression namespace.
type FileMeta struct {
	Name    string    `json:"name"`
	Ext     string    `json:"ext"`
	Folder  string    `json:"folder"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	Tags    []string  `json:"tags,omitempty"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkRef is one discovered cross-document reference: the raw target plus
// the optional #fragment (view name) and |alias captured separately.
type LinkRef struct {
	Target   string `json:"target"`
	Fragment string `json:"fragment,omitempty"`
	Alias    string `json:"alias,omitempty"`
	Embed    bool   `json:"embed,omitempty"`
}

// Link is a directed edge between two notes as stored in the index.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "inline" or "embed"
}
