package base

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/expr"
)

// topLevelKeys are the keys the loader consumes; anything else is kept in
// Definition.Extra but otherwise ignored.
var topLevelKeys = map[string]struct{}{
	"source": {}, "folder": {}, "filters": {}, "formulas": {},
	"views": {}, "sort": {}, "limit": {}, "columns": {}, "properties": {},
}

// Load parses a Base definition document — standalone `.base` YAML or the
// body of an inline fenced block; both surface forms normalize to the same
// Definition. Structural violations fail with a SchemaError, malformed
// embedded expressions with an expr.SyntaxError.
func Load(name string, data []byte) (*Definition, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaError{Definition: name, Field: "-", Msg: fmt.Sprintf("invalid YAML: %v", err)}
	}

	def := &Definition{Name: name}

	if v, ok := firstKey(raw, "source", "folder"); ok {
		s, ok := v.(string)
		if !ok {
			return nil, &SchemaError{Definition: name, Field: "source", Msg: "must be a string"}
		}
		def.Source = strings.Trim(s, "/")
	}

	if v, ok := raw["filters"]; ok && v != nil {
		node, err := expr.ParseLogicalTree(normalizeTree(v))
		if err != nil {
			return nil, err
		}
		def.Filter = node
	}

	if v, ok := raw["formulas"]; ok && v != nil {
		formulas, err := loadFormulas(name, v)
		if err != nil {
			return nil, err
		}
		def.Formulas = formulas
	}

	if v, ok := raw["sort"]; ok && v != nil {
		keys, err := loadSortKeys(name, "sort", v)
		if err != nil {
			return nil, err
		}
		def.DefaultSort = keys
	}

	if v, ok := raw["limit"]; ok && v != nil {
		limit, ok := asInt(v)
		if !ok || limit < 0 {
			return nil, &SchemaError{Definition: name, Field: "limit", Msg: "must be a non-negative integer"}
		}
		def.DefaultLimit = limit
	}

	if v, ok := raw["columns"]; ok && v != nil {
		cols, err := loadColumns(name, "columns", v)
		if err != nil {
			return nil, err
		}
		def.DefaultColumns = cols
	}

	if v, ok := raw["properties"]; ok && v != nil {
		props, ok := v.(map[string]any)
		if !ok {
			return nil, &SchemaError{Definition: name, Field: "properties", Msg: "must be a mapping"}
		}
		def.Properties = props
	}

	if v, ok := raw["views"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, &SchemaError{Definition: name, Field: "views", Msg: "must be a list"}
		}
		for i, item := range list {
			view, err := loadView(name, i, item, def)
			if err != nil {
				return nil, err
			}
			def.Views = append(def.Views, view)
		}
	}

	for k, v := range raw {
		if _, known := topLevelKeys[k]; !known {
			if def.Extra == nil {
				def.Extra = make(map[string]any)
			}
			def.Extra[k] = v
		}
	}

	return def, nil
}

func loadFormulas(name string, raw any) (map[string]expr.Node, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &SchemaError{Definition: name, Field: "formulas", Msg: "must be a mapping of name to expression"}
	}
	out := make(map[string]expr.Node, len(m))
	for fname, body := range m {
		s, ok := body.(string)
		if !ok {
			return nil, &SchemaError{Definition: name, Field: "formulas." + fname, Msg: "expression must be a string"}
		}
		node, err := expr.Parse(s)
		if err != nil {
			return nil, err
		}
		out[fname] = node
	}
	return out, nil
}

func loadView(name string, idx int, raw any, def *Definition) (ViewSpec, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return ViewSpec{}, &SchemaError{Definition: name, Field: fmt.Sprintf("views[%d]", idx), Msg: "must be a mapping"}
	}
	field := func(key string) string { return fmt.Sprintf("views[%d].%s", idx, key) }

	vt := ViewType(strings.ToLower(strings.TrimSpace(asString(m["type"]))))
	if vt == "" {
		vt = ViewTable
	}
	if !knownViewType(vt) {
		return ViewSpec{}, &SchemaError{Definition: name, Field: field("type"), Msg: fmt.Sprintf("unknown view type %q", vt)}
	}

	view := ViewSpec{
		Type:    vt,
		Name:    asString(m["name"]),
		GroupBy: asString(firstOf(m, "groupBy", "group_by")),
		Limit:   def.DefaultLimit,
		Sort:    def.DefaultSort,
		Columns: def.DefaultColumns,
	}
	if view.Name == "" {
		view.Name = fmt.Sprintf("View %d", idx+1)
	}

	if v, ok := m["filters"]; ok && v != nil {
		node, err := expr.ParseLogicalTree(normalizeTree(v))
		if err != nil {
			return ViewSpec{}, err
		}
		view.Filter = node
	}

	if v, ok := m["sort"]; ok && v != nil {
		keys, err := loadSortKeys(name, field("sort"), v)
		if err != nil {
			return ViewSpec{}, err
		}
		view.Sort = keys
	}

	if v, ok := m["limit"]; ok && v != nil {
		limit, ok := asInt(v)
		if !ok || limit < 0 {
			return ViewSpec{}, &SchemaError{Definition: name, Field: field("limit"), Msg: "must be a non-negative integer"}
		}
		view.Limit = limit
	}

	if v, ok := firstKey(m, "columns", "order"); ok {
		cols, err := loadColumns(name, field("columns"), v)
		if err != nil {
			return ViewSpec{}, err
		}
		view.Columns = cols
	}

	view.Layout = LayoutHints{
		Image:       asString(m["image"]),
		AspectRatio: asString(firstOf(m, "aspectRatio", "aspect_ratio")),
	}
	if cs, ok := asInt(firstOf(m, "cardSize", "card_size")); ok {
		view.Layout.CardSize = cs
	}

	return view, nil
}

// loadSortKeys accepts the standalone list form
// ([{property, direction}...] or bare property strings) and the compact
// single-string form ("property direction").
func loadSortKeys(name, field string, raw any) ([]SortKey, error) {
	switch t := raw.(type) {
	case string:
		key, err := parseCompactSort(name, field, t)
		if err != nil {
			return nil, err
		}
		return []SortKey{key}, nil
	case []any:
		out := make([]SortKey, 0, len(t))
		for _, item := range t {
			switch entry := item.(type) {
			case string:
				key, err := parseCompactSort(name, field, entry)
				if err != nil {
					return nil, err
				}
				out = append(out, key)
			case map[string]any:
				prop := asString(entry["property"])
				if prop == "" {
					return nil, &SchemaError{Definition: name, Field: field, Msg: "sort entry needs a property"}
				}
				key, err := newSortKey(name, field, prop, asString(entry["direction"]))
				if err != nil {
					return nil, err
				}
				out = append(out, key)
			default:
				return nil, &SchemaError{Definition: name, Field: field, Msg: "sort entries must be strings or mappings"}
			}
		}
		return out, nil
	}
	return nil, &SchemaError{Definition: name, Field: field, Msg: "must be a string or a list"}
}

// parseCompactSort splits "property direction" with an optional direction.
func parseCompactSort(name, field, s string) (SortKey, error) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 1:
		return newSortKey(name, field, parts[0], "")
	case 2:
		return newSortKey(name, field, parts[0], parts[1])
	}
	return SortKey{}, &SchemaError{Definition: name, Field: field, Msg: fmt.Sprintf("cannot parse sort %q", s)}
}

func newSortKey(name, field, prop, dir string) (SortKey, error) {
	switch strings.ToLower(dir) {
	case "", "asc", "ascending":
		dir = "asc"
	case "desc", "descending":
		dir = "desc"
	default:
		return SortKey{}, &SchemaError{Definition: name, Field: field, Msg: fmt.Sprintf("unknown sort direction %q", dir)}
	}
	ref, err := expr.Parse(prop)
	if err != nil {
		return SortKey{}, err
	}
	return SortKey{Property: prop, Direction: dir, ref: ref}, nil
}

// loadColumns accepts a list of strings or the compact comma-separated
// string form.
func loadColumns(name, field string, raw any) ([]string, error) {
	switch t := raw.(type) {
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, &SchemaError{Definition: name, Field: field, Msg: "columns must be strings"}
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	}
	return nil, &SchemaError{Definition: name, Field: field, Msg: "must be a string or a list"}
}

// normalizeTree converts yaml.v3's map[string]any/[]any decoding into the
// shape expr.ParseLogicalTree expects (it already matches; this exists to
// convert nested map[any]any from hand-built test input).
func normalizeTree(raw any) any {
	switch t := raw.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[fmt.Sprintf("%v", k)] = normalizeTree(v)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = normalizeTree(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = normalizeTree(v)
		}
		return out
	default:
		return raw
	}
}

func firstKey(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstOf(m map[string]any, keys ...string) any {
	v, _ := firstKey(m, keys...)
	return v
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
