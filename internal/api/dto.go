package api

import (
	"github.com/starford/ansuz/internal/base"
	"github.com/starford/ansuz/internal/expr"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// DocumentDetail is the transformed document response type.
type DocumentDetail = noteservice.DocumentDetail

// BaseInfo summarizes one base definition in list responses.
type BaseInfo = noteservice.BaseInfo

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// GraphResponse wraps the link graph.
type GraphResponse struct {
	Nodes []graph.Node `json:"nodes" validate:"required"`
	Links []graph.Link `json:"links" validate:"required"`
}

// BaseDetail describes one base definition: its scope, formula names, and
// views. Expressions are rendered back to their canonical text form.
type BaseDetail struct {
	Name     string            `json:"name"`
	Source   string            `json:"source,omitempty"`
	Filter   string            `json:"filter,omitempty"`
	Formulas map[string]string `json:"formulas,omitempty"`
	Views    []ViewSummary     `json:"views"`
}

// ViewSummary is one view inside a BaseDetail.
type ViewSummary struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Filter  string   `json:"filter,omitempty"`
	GroupBy string   `json:"group_by,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Columns []string `json:"columns,omitempty"`
}

// ViewRow is one resolved row: note identity plus evaluated values.
type ViewRow struct {
	Path       string                `json:"path"`
	Title      string                `json:"title"`
	Values     map[string]expr.Value `json:"values,omitempty"`
	CellErrors map[string]string     `json:"cell_errors,omitempty"`
}

// ViewGroup is one group-by partition in a resolved view.
type ViewGroup struct {
	Key  string    `json:"key"`
	Rows []ViewRow `json:"rows"`
}

// ViewResponse is a resolved view.
type ViewResponse struct {
	Base        string             `json:"base"`
	View        string             `json:"view"`
	Type        string             `json:"type"`
	Columns     []string           `json:"columns,omitempty"`
	Layout      base.LayoutHints   `json:"layout,omitempty"`
	Rows        []ViewRow          `json:"rows"`
	Groups      []ViewGroup        `json:"groups,omitempty"`
	Diagnostics []base.Diagnostic  `json:"diagnostics,omitempty"`
}

func newBaseDetail(def *base.Definition) BaseDetail {
	d := BaseDetail{Name: def.Name, Source: def.Source}
	if def.Filter != nil {
		d.Filter = def.Filter.String()
	}
	if len(def.Formulas) > 0 {
		d.Formulas = make(map[string]string, len(def.Formulas))
		for name, node := range def.Formulas {
			d.Formulas[name] = node.String()
		}
	}
	d.Views = make([]ViewSummary, len(def.Views))
	for i, v := range def.Views {
		vs := ViewSummary{
			Type:    string(v.Type),
			Name:    v.Name,
			GroupBy: v.GroupBy,
			Limit:   v.Limit,
			Columns: v.Columns,
		}
		if v.Filter != nil {
			vs.Filter = v.Filter.String()
		}
		d.Views[i] = vs
	}
	return d
}

func newViewResponse(res *base.Result) ViewResponse {
	out := ViewResponse{
		Base:        res.Definition,
		View:        res.View,
		Type:        string(res.Type),
		Columns:     res.Columns,
		Layout:      res.Layout,
		Rows:        make([]ViewRow, len(res.Rows)),
		Diagnostics: res.Diagnostics,
	}
	for i, row := range res.Rows {
		out.Rows[i] = newViewRow(row)
	}
	for _, g := range res.Groups {
		vg := ViewGroup{Key: g.Key, Rows: make([]ViewRow, len(g.Rows))}
		for i, row := range g.Rows {
			vg.Rows[i] = newViewRow(row)
		}
		out.Groups = append(out.Groups, vg)
	}
	return out
}

func newViewRow(row base.Row) ViewRow {
	return ViewRow{
		Path:       row.Note.Path,
		Title:      row.Note.Title,
		Values:     row.Values,
		CellErrors: row.CellErrors,
	}
}
