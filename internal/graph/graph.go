// Package graph derives the node/edge graph from resolved links across the
// corpus. The graph is rebuilt in full on every extraction pass; there is
// no incremental edge maintenance.
package graph

import (
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// Node is one page in the graph. The field names and shapes of Node and
// Link are the external contract consumed by the rendering layer and must
// not change independently of it.
type Node struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Link is a directed edge between two existing pages.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the full extraction result.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Extract builds the graph from a fully-rewritten corpus snapshot. Nodes
// come from documents actually present; a link whose target does not
// resolve to an existing document contributes no edge and no phantom node,
// so typos cannot grow the graph unboundedly.
func Extract(corpus []*models.Note) *Graph {
	g := &Graph{}
	resolve := newResolver(corpus)

	for _, note := range corpus {
		g.Nodes = append(g.Nodes, Node{ID: note.Path, Title: note.Title})
	}

	seen := make(map[Link]struct{})
	for _, note := range corpus {
		for _, target := range note.Links {
			id, ok := resolve(target)
			if !ok || id == note.Path {
				continue
			}
			edge := Link{Source: note.Path, Target: id}
			if _, dup := seen[edge]; dup {
				continue
			}
			seen[edge] = struct{}{}
			g.Links = append(g.Links, edge)
		}
	}
	return g
}

// newResolver maps link targets to document identities. Targets resolve by
// exact path, path without extension, or unique file name stem — the same
// lookup order Obsidian uses for short links.
func newResolver(corpus []*models.Note) func(string) (string, bool) {
	byPath := make(map[string]string, len(corpus))
	byStem := make(map[string]string)
	ambiguous := make(map[string]bool)

	for _, note := range corpus {
		byPath[note.Path] = note.Path
		byPath[trimExt(note.Path)] = note.Path

		stem := trimExt(note.Meta.Name)
		if _, exists := byStem[stem]; exists {
			ambiguous[stem] = true
		} else {
			byStem[stem] = note.Path
		}
	}

	return func(target string) (string, bool) {
		target = strings.Trim(strings.TrimSpace(target), "/")
		if target == "" {
			return "", false
		}
		if id, ok := byPath[target]; ok {
			return id, true
		}
		if id, ok := byStem[trimExt(target)]; ok && !ambiguous[trimExt(target)] {
			return id, true
		}
		return "", false
	}
}

func trimExt(p string) string {
	if i := strings.LastIndexByte(p, '.'); i > strings.LastIndexByte(p, '/') {
		return p[:i]
	}
	return p
}
