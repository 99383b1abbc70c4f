package base

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/expr"
	"github.com/starford/ansuz/internal/models"
)

// Result is a resolved view: the ordered rows that satisfy the combined
// filter, sorted and truncated per the view spec, plus the diagnostics
// collected along the way. It is computed on demand and never cached
// across corpus or definition changes.
type Result struct {
	Definition  string       `json:"definition"`
	View        string       `json:"view"`
	Type        ViewType     `json:"type"`
	Columns     []string     `json:"columns,omitempty"`
	Layout      LayoutHints  `json:"layout,omitempty"`
	Rows        []Row        `json:"rows"`
	Groups      []Group      `json:"groups,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Row pairs a note with its formula-value mapping. CellErrors carries
// per-cell error markers for formula columns that failed to evaluate.
type Row struct {
	Note       *models.Note          `json:"note"`
	Values     map[string]expr.Value `json:"values,omitempty"`
	CellErrors map[string]string     `json:"cell_errors,omitempty"`

	sortKeys []expr.Value
}

// Group is one group-by partition; row order within a group follows the
// view's sort order.
type Group struct {
	Key  string `json:"key"`
	Rows []Row  `json:"rows"`
}

// Diagnostic reports a non-fatal per-note or per-formula failure.
type Diagnostic struct {
	Note    string `json:"note,omitempty"`
	Message string `json:"message"`
}

// ErrViewNotFound is returned when a view selector matches nothing.
var ErrViewNotFound = errors.New("base: view not found")

// Resolve applies a definition's view to the corpus. The selector is a
// view name or a numeric index; empty selects the first view. Unsupported
// view types (calendar, map) fail with an UnsupportedViewError rather
// than returning a silently empty result.
func Resolve(def *Definition, selector string, corpus []*models.Note) (*Result, error) {
	view, err := selectView(def, selector)
	if err != nil {
		return nil, err
	}
	if !implementedViewType(view.Type) {
		return nil, &UnsupportedViewError{View: view.Name, Type: view.Type}
	}

	res := &Result{
		Definition: def.Name,
		View:       view.Name,
		Type:       view.Type,
		Columns:    view.Columns,
		Layout:     view.Layout,
	}

	// One evaluation pass per resolution: the pass instant and the
	// formula memo live exactly as long as this call.
	env := expr.NewEnv(def.Formulas)

	filter := combineFilters(def.Filter, view.Filter)
	needed := neededFormulas(def, view, filter)

	for _, note := range scopedCorpus(def.Source, corpus) {
		if filter != nil {
			v, err := expr.Eval(filter, note, env)
			drainCycles(env, res, note.Path)
			if err != nil {
				// A per-note type mismatch excludes only that note.
				res.Diagnostics = append(res.Diagnostics, Diagnostic{Note: note.Path, Message: err.Error()})
				continue
			}
			if !v.Truthy() {
				continue
			}
		}

		row := Row{Note: note}
		for _, fname := range needed {
			v, err := expr.Eval(&expr.PropertyRef{Namespace: "formula", Key: fname}, note, env)
			if err != nil {
				// Formula failure for a displayed column surfaces as a
				// per-cell marker; the view itself keeps going.
				if row.CellErrors == nil {
					row.CellErrors = make(map[string]string)
				}
				row.CellErrors[fname] = err.Error()
				res.Diagnostics = append(res.Diagnostics, Diagnostic{Note: note.Path, Message: err.Error()})
				continue
			}
			if row.Values == nil {
				row.Values = make(map[string]expr.Value)
			}
			row.Values[fname] = v
		}

		for _, key := range view.Sort {
			v, err := expr.Eval(key.ref, note, env)
			if err != nil {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{Note: note.Path, Message: err.Error()})
				v = expr.Null // sorts last either way
			}
			row.sortKeys = append(row.sortKeys, v)
		}
		drainCycles(env, res, note.Path)

		res.Rows = append(res.Rows, row)
	}

	sortRows(res.Rows, view.Sort)

	if view.GroupBy != "" {
		groups, err := groupRows(res.Rows, view.GroupBy, env, res)
		if err != nil {
			return nil, err
		}
		res.Groups = groups
	}

	applyLimit(res, view.Limit)
	return res, nil
}

func selectView(def *Definition, selector string) (*ViewSpec, error) {
	if len(def.Views) == 0 {
		return nil, fmt.Errorf("%w: definition %q has no views", ErrViewNotFound, def.Name)
	}
	if selector == "" {
		return &def.Views[0], nil
	}
	for i := range def.Views {
		if def.Views[i].Name == selector {
			return &def.Views[i], nil
		}
	}
	for i := range def.Views {
		if strings.EqualFold(def.Views[i].Name, selector) {
			return &def.Views[i], nil
		}
	}
	if idx, err := strconv.Atoi(selector); err == nil && idx >= 0 && idx < len(def.Views) {
		return &def.Views[idx], nil
	}
	return nil, fmt.Errorf("%w: %q in definition %q", ErrViewNotFound, selector, def.Name)
}

// scopedCorpus narrows the corpus to the definition's source folder.
func scopedCorpus(source string, corpus []*models.Note) []*models.Note {
	if source == "" {
		return corpus
	}
	var out []*models.Note
	for _, n := range corpus {
		folder := strings.Trim(n.Meta.Folder, "/")
		if folder == source || strings.HasPrefix(folder, source+"/") {
			out = append(out, n)
		}
	}
	return out
}

func combineFilters(global, view expr.Node) expr.Node {
	switch {
	case global == nil:
		return view
	case view == nil:
		return global
	default:
		return &expr.LogicalGroup{Op: "and", Children: []expr.Node{global, view}}
	}
}

// neededFormulas returns the formula names referenced directly or
// indirectly by the view's filter, sort keys, and columns, in stable
// order. When the view declares no columns, every formula is evaluated
// (all of them are potential display columns).
func neededFormulas(def *Definition, view *ViewSpec, filter expr.Node) []string {
	if len(def.Formulas) == 0 {
		return nil
	}

	want := make(map[string]bool)
	if len(view.Columns) == 0 {
		for name := range def.Formulas {
			want[name] = true
		}
	} else {
		for _, col := range view.Columns {
			if name, ok := strings.CutPrefix(col, "formula."); ok {
				want[name] = true
			}
		}
	}
	collectFormulaRefs(filter, want)
	for _, key := range view.Sort {
		collectFormulaRefs(key.ref, want)
	}

	// Transitive closure through the formula table.
	for changed := true; changed; {
		changed = false
		for name := range want {
			body, ok := def.Formulas[name]
			if !ok {
				continue
			}
			before := len(want)
			collectFormulaRefs(body, want)
			if len(want) != before {
				changed = true
			}
		}
	}

	out := make([]string, 0, len(want))
	for name := range want {
		if _, ok := def.Formulas[name]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func collectFormulaRefs(node expr.Node, into map[string]bool) {
	switch n := node.(type) {
	case nil:
	case *expr.PropertyRef:
		if n.Namespace == "formula" {
			into[n.Key] = true
		}
	case *expr.UnaryOp:
		collectFormulaRefs(n.Operand, into)
	case *expr.BinaryOp:
		collectFormulaRefs(n.Left, into)
		collectFormulaRefs(n.Right, into)
	case *expr.LogicalGroup:
		for _, c := range n.Children {
			collectFormulaRefs(c, into)
		}
	case *expr.FunctionCall:
		for _, a := range n.Args {
			collectFormulaRefs(a, into)
		}
	}
}

// sortRows stable-sorts by the ordered key list, comparing successive keys
// only on ties. Null keys sort last regardless of direction so the order
// stays total.
func sortRows(rows []Row, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k := range keys {
			cmp := compareForSort(rows[i].sortKeys[k], rows[j].sortKeys[k], keys[k].Direction == "desc")
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

// compareForSort orders two values totally: null always last, then by kind
// rank for cross-kind pairs, then by natural in-kind order. desc flips the
// non-null ordering only.
func compareForSort(a, b expr.Value, desc bool) int {
	if a.IsNull() || b.IsNull() {
		switch {
		case a.IsNull() && b.IsNull():
			return 0
		case a.IsNull():
			return 1
		default:
			return -1
		}
	}
	cmp := 0
	if a.Kind != b.Kind {
		cmp = int(a.Kind) - int(b.Kind)
	} else {
		switch a.Kind {
		case expr.KindBool:
			switch {
			case !a.Bool && b.Bool:
				cmp = -1
			case a.Bool && !b.Bool:
				cmp = 1
			}
		case expr.KindNumber:
			switch {
			case a.Num < b.Num:
				cmp = -1
			case a.Num > b.Num:
				cmp = 1
			}
		case expr.KindString:
			cmp = strings.Compare(a.Str, b.Str)
		case expr.KindDate:
			cmp = a.Time.Compare(b.Time)
		}
	}
	if desc {
		cmp = -cmp
	}
	return cmp
}

// groupRows partitions rows by the group-by key, preserving sort order
// within each group and ordering groups by first appearance.
// drainCycles folds formula cycles detected during the last evaluation
// into the result diagnostics, attributed to the note being resolved.
func drainCycles(env *expr.Env, res *Result, notePath string) {
	for _, c := range env.Cycles() {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{Note: notePath, Message: c.Error()})
	}
}

func groupRows(rows []Row, groupBy string, env *expr.Env, res *Result) ([]Group, error) {
	ref, err := expr.Parse(groupBy)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var groups []Group
	for _, row := range rows {
		v, evalErr := expr.Eval(ref, row.Note, env)
		drainCycles(env, res, row.Note.Path)
		if evalErr != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Note: row.Note.Path, Message: evalErr.Error()})
			v = expr.Null
		}
		key := v.String()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Rows = append(groups[i].Rows, row)
	}
	return groups, nil
}

// applyLimit truncates to the overall result count after sort and group
// partitioning; it never limits per group.
func applyLimit(res *Result, limit int) {
	if limit <= 0 {
		return
	}
	if len(res.Rows) > limit {
		res.Rows = res.Rows[:limit]
	}
	remaining := limit
	for i := range res.Groups {
		n := len(res.Groups[i].Rows)
		if n > remaining {
			res.Groups[i].Rows = res.Groups[i].Rows[:remaining]
			n = remaining
		}
		remaining -= n
	}
	// Drop groups emptied by the truncation.
	kept := res.Groups[:0]
	for _, g := range res.Groups {
		if len(g.Rows) > 0 {
			kept = append(kept, g)
		}
	}
	if res.Groups != nil {
		res.Groups = kept
	}
}
