// Package base loads Base definitions (declarative filter/formula/view
// specifications over the note corpus) and resolves their views.
package base

import (
	"fmt"

	"github.com/starford/ansuz/internal/expr"
)

// ViewType tags a view. The set is closed: calendar and map are recognized
// by the loader but mapped to an UnsupportedViewError at resolution time,
// so the schema stays exhaustive and future support is a pure addition.
type ViewType string

const (
	ViewTable    ViewType = "table"
	ViewCards    ViewType = "cards"
	ViewList     ViewType = "list"
	ViewCalendar ViewType = "calendar"
	ViewMap      ViewType = "map"
)

func knownViewType(t ViewType) bool {
	switch t {
	case ViewTable, ViewCards, ViewList, ViewCalendar, ViewMap:
		return true
	}
	return false
}

// implementedViewType reports whether resolution supports the type.
func implementedViewType(t ViewType) bool {
	switch t {
	case ViewTable, ViewCards, ViewList:
		return true
	}
	return false
}

// Definition is the normalized internal model shared by the standalone
// document form and the inline compact form.
type Definition struct {
	Name     string
	Source   string // folder scope; empty means the whole corpus
	Filter   expr.Node
	Formulas map[string]expr.Node
	Views    []ViewSpec

	DefaultSort    []SortKey
	DefaultLimit   int
	DefaultColumns []string

	// Properties is renderer display config, passed through untouched.
	Properties map[string]any
	// Extra preserves unknown top-level keys for forward compatibility.
	Extra map[string]any
}

// ViewSpec is one rendering configuration within a definition.
type ViewSpec struct {
	Type    ViewType
	Name    string
	Filter  expr.Node // ANDed with the definition's global filter
	Sort    []SortKey
	Limit   int // 0 = no limit
	GroupBy string
	Columns []string
	Layout  LayoutHints
}

// LayoutHints are opaque pass-through data for the rendering collaborator;
// the core never interprets them.
type LayoutHints struct {
	Image       string `json:"image,omitempty"`
	CardSize    int    `json:"cardSize,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// SortKey is one ordered sort criterion. Property may name a frontmatter
// key, a file.<x> metadata field, or a formula.<x> reference; ref holds
// the pre-parsed accessor expression.
type SortKey struct {
	Property  string
	Direction string // "asc" or "desc"

	ref expr.Node
}

// SchemaError reports a structurally malformed definition.
type SchemaError struct {
	Definition string
	Field      string
	Msg        string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("base: schema error in %s: %s: %s", e.Definition, e.Field, e.Msg)
}

// UnsupportedViewError reports a view type that is recognized by the
// schema but has no resolver implementation.
type UnsupportedViewError struct {
	View string
	Type ViewType
}

func (e *UnsupportedViewError) Error() string {
	return fmt.Sprintf("base: view %q: type %q is not implemented", e.View, e.Type)
}
