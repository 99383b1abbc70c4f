package base

import (
	"errors"
	"testing"

	"github.com/starford/ansuz/internal/expr"
)

const standaloneDoc = `
source: Projects
filters:
  and:
    - 'status != "archived"'
    - or:
        - hasTag("active")
        - priority > 3
formulas:
  age_days: "(now() - date(created)) / 86400000"
views:
  - type: table
    name: Overview
    sort:
      - property: due
        direction: descending
      - property: file.name
    limit: 10
    columns:
      - file.name
      - status
      - formula.age_days
  - type: cards
    name: Gallery
    image: cover
    cardSize: 280
    aspectRatio: "16:9"
icon: i-lucide-box
`

func TestLoad_Standalone(t *testing.T) {
	def, err := Load("Projects.base", []byte(standaloneDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Source != "Projects" {
		t.Errorf("source = %q, want Projects", def.Source)
	}
	group, ok := def.Filter.(*expr.LogicalGroup)
	if !ok || group.Op != "and" || len(group.Children) != 2 {
		t.Fatalf("filter = %#v, want two-child and group", def.Filter)
	}
	if _, ok := def.Formulas["age_days"]; !ok {
		t.Error("formula age_days not loaded")
	}
	if len(def.Views) != 2 {
		t.Fatalf("views = %d, want 2", len(def.Views))
	}

	overview := def.Views[0]
	if overview.Type != ViewTable || overview.Name != "Overview" {
		t.Errorf("view 0 = %s/%s", overview.Type, overview.Name)
	}
	if len(overview.Sort) != 2 || overview.Sort[0].Direction != "desc" || overview.Sort[1].Direction != "asc" {
		t.Errorf("sort = %+v", overview.Sort)
	}
	if overview.Limit != 10 || len(overview.Columns) != 3 {
		t.Errorf("limit/columns = %d/%v", overview.Limit, overview.Columns)
	}

	gallery := def.Views[1]
	if gallery.Type != ViewCards {
		t.Errorf("view 1 type = %s, want cards", gallery.Type)
	}
	if gallery.Layout.Image != "cover" || gallery.Layout.CardSize != 280 || gallery.Layout.AspectRatio != "16:9" {
		t.Errorf("layout = %+v", gallery.Layout)
	}

	// Unknown top-level keys are preserved, not rejected.
	if def.Extra["icon"] != "i-lucide-box" {
		t.Errorf("extra = %v", def.Extra)
	}
}

func TestLoad_CompactForm(t *testing.T) {
	doc := `
folder: Blog
sort: date desc
columns: title, date, formula.age_days
limit: 5
`
	def, err := Load("inline-0", []byte(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Source != "Blog" {
		t.Errorf("source = %q, want Blog", def.Source)
	}
	if len(def.DefaultSort) != 1 || def.DefaultSort[0].Property != "date" || def.DefaultSort[0].Direction != "desc" {
		t.Errorf("sort = %+v", def.DefaultSort)
	}
	want := []string{"title", "date", "formula.age_days"}
	if len(def.DefaultColumns) != len(want) {
		t.Fatalf("columns = %v", def.DefaultColumns)
	}
	for i, col := range want {
		if def.DefaultColumns[i] != col {
			t.Errorf("columns[%d] = %q, want %q", i, def.DefaultColumns[i], col)
		}
	}
	if def.DefaultLimit != 5 {
		t.Errorf("limit = %d, want 5", def.DefaultLimit)
	}
}

func TestLoad_ViewsInheritDefaults(t *testing.T) {
	doc := `
sort: date desc
limit: 3
views:
  - type: list
    name: Latest
`
	def, err := Load("x", []byte(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v := def.Views[0]
	if v.Limit != 3 || len(v.Sort) != 1 || v.Sort[0].Property != "date" {
		t.Errorf("view did not inherit defaults: %+v", v)
	}
}

func TestLoad_SchemaErrors(t *testing.T) {
	docs := map[string]string{
		"views not a list":  "views: 12",
		"unknown view type": "views:\n  - type: timeline",
		"bad limit":         "limit: [1]",
		"bad formulas":      "formulas: [a, b]",
	}
	for name, doc := range docs {
		_, err := Load("bad", []byte(doc))
		var se *SchemaError
		if !errors.As(err, &se) {
			t.Errorf("%s: error = %v, want *SchemaError", name, err)
		}
	}
}

func TestLoad_BadExpressionIsSyntaxError(t *testing.T) {
	_, err := Load("bad", []byte(`filters: "status == "`))
	var syn *expr.SyntaxError
	if !errors.As(err, &syn) {
		t.Errorf("error = %v, want *expr.SyntaxError", err)
	}
}

func TestLoad_CalendarAcceptedAtLoadTime(t *testing.T) {
	def, err := Load("cal", []byte("views:\n  - type: calendar\n    name: Planner"))
	if err != nil {
		t.Fatalf("calendar must load: %v", err)
	}
	if def.Views[0].Type != ViewCalendar {
		t.Errorf("type = %s, want calendar", def.Views[0].Type)
	}
}
