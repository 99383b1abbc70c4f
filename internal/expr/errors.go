package expr

import (
	"fmt"
	"strings"
)

// SyntaxError reports malformed expression text. Token is the offending
// token (or a description of it) and Offset its byte position in the input.
type SyntaxError struct {
	Token  string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expr: syntax error at offset %d near %q: %s", e.Offset, e.Token, e.Msg)
}

// TypeError reports an expression evaluated against incompatible value
// kinds. Node is the re-serialized form of the failing AST node.
type TypeError struct {
	Node string
	Want string
	Got  []Kind
}

func (e *TypeError) Error() string {
	kinds := make([]string, len(e.Got))
	for i, k := range e.Got {
		kinds[i] = k.String()
	}
	return fmt.Sprintf("expr: type error in %s: want %s, got %s", e.Node, e.Want, strings.Join(kinds, " and "))
}

// CycleError reports self- or mutual reference among formulas. Path holds
// the formula names along the recursion path, first repeat last.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("expr: formula cycle: %s", strings.Join(e.Path, " -> "))
}
