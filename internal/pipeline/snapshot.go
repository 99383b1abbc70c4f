package pipeline

import (
	"fmt"
	"sort"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/base"
)

// Definition looks up a base definition by name. A bare name without the
// .base extension matches its standalone file form.
func (s *Snapshot) Definition(name string) (*base.Definition, bool) {
	if def, ok := s.Definitions[name]; ok {
		return def, true
	}
	if def, ok := s.Definitions[name+".base"]; ok {
		return def, true
	}
	return nil, false
}

// DefinitionNames returns every loaded definition name in sorted order.
func (s *Snapshot) DefinitionNames() []string {
	out := make([]string, 0, len(s.Definitions))
	for name := range s.Definitions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveView resolves one view of a named base against the snapshot corpus.
// selector may be a view name, a numeric index, or empty for the first view.
func (s *Snapshot) ResolveView(baseName, selector string) (*base.Result, error) {
	def, ok := s.Definition(baseName)
	if !ok {
		return nil, fmt.Errorf("pipeline: base %q: %w", baseName, apperr.ErrNotFound)
	}
	return base.Resolve(def, selector, s.Notes)
}

// Document returns the transformed document at path, or nil.
func (s *Snapshot) Document(path string) *Document {
	return s.Documents[path]
}
