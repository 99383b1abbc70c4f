package expr

import (
	"strconv"
	"strings"
)

// Node is an expression AST node. String re-serializes the node to a form
// that parses back to an equal AST (fully parenthesized, so precedence is
// explicit).
type Node interface {
	String() string
}

// Literal is a scalar constant.
type Literal struct {
	Val Value
}

func (n *Literal) String() string {
	if n.Val.Kind == KindString {
		return strconv.Quote(n.Val.Str)
	}
	return n.Val.String()
}

// PropertyRef references a property in one of the three namespaces:
// "note" (frontmatter, also the bare-identifier fallback), "file" (derived
// file metadata) and "formula" (the definition's formula table).
type PropertyRef struct {
	Namespace string
	Key       string
}

func (n *PropertyRef) String() string {
	return n.Namespace + "." + n.Key
}

// FunctionCall invokes a registered built-in. Arity is validated at parse
// time against the registry, so Args always matches the declared shape.
type FunctionCall struct {
	Name string
	Args []Node
}

func (n *FunctionCall) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

// BinaryOp is an arithmetic or comparison operator. Logical and/or live in
// LogicalGroup, never here.
type BinaryOp struct {
	Op    string
	Left  Node
	Right Node
}

func (n *BinaryOp) String() string {
	return "(" + n.Left.String() + " " + n.Op + " " + n.Right.String() + ")"
}

// UnaryOp is prefix "not" or "-".
type UnaryOp struct {
	Op      string
	Operand Node
}

func (n *UnaryOp) String() string {
	if n.Op == "not" {
		return "(not " + n.Operand.String() + ")"
	}
	return "(" + n.Op + n.Operand.String() + ")"
}

// LogicalGroup is an and/or/not node with an ordered, never-empty child
// list. Chains of the same operator parse to a single flat group; YAML
// filter trees map onto it directly. A "not" group negates the conjunction
// of its children.
type LogicalGroup struct {
	Op       string // "and", "or", "not"
	Children []Node
}

func (n *LogicalGroup) String() string {
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	if n.Op == "not" {
		if len(parts) == 1 {
			return "(not " + parts[0] + ")"
		}
		return "(not (" + strings.Join(parts, " and ") + "))"
	}
	return "(" + strings.Join(parts, " "+n.Op+" ") + ")"
}
