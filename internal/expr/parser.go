package expr

import "fmt"

// Parse tokenizes and parses an expression string into its AST. Grammar
// precedence, loosest first: or, and, comparison, additive, multiplicative,
// unary not/-. Parentheses override precedence.
func Parse(input string) (Node, error) {
	p := &parser{lex: &lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errHere("expected end of expression")
	}
	return node, nil
}

// ParseLogicalTree converts a decoded YAML filter tree into the same AST
// shape the operator grammar produces: a string leaf is parsed with Parse,
// a map with a single and/or/not key becomes a LogicalGroup over its
// recursively converted children.
func ParseLogicalTree(raw any) (Node, error) {
	switch t := raw.(type) {
	case string:
		return Parse(t)
	case map[string]any:
		if len(t) != 1 {
			return nil, &SyntaxError{Token: fmt.Sprintf("%v", t), Msg: "logical group must have exactly one of and/or/not"}
		}
		for op, children := range t {
			if op != "and" && op != "or" && op != "not" {
				return nil, &SyntaxError{Token: op, Msg: "unknown logical operator"}
			}
			list, ok := children.([]any)
			if !ok || len(list) == 0 {
				return nil, &SyntaxError{Token: op, Msg: "logical group children must be a non-empty list"}
			}
			group := &LogicalGroup{Op: op, Children: make([]Node, 0, len(list))}
			for _, child := range list {
				node, err := ParseLogicalTree(child)
				if err != nil {
					return nil, err
				}
				group.Children = append(group.Children, node)
			}
			return group, nil
		}
	}
	return nil, &SyntaxError{Token: fmt.Sprintf("%v", raw), Msg: "filter must be a string or an and/or/not mapping"}
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errHere(msg string) *SyntaxError {
	return &SyntaxError{Token: p.tok.text, Offset: p.tok.offset, Msg: msg}
}

// expect consumes the current token if it matches, or fails.
func (p *parser) expect(kind tokenKind, what string) error {
	if p.tok.kind != kind {
		return p.errHere("expected " + what)
	}
	return p.advance()
}

func (p *parser) parseOr() (Node, error) {
	return p.parseLogicalChain("or", p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseLogicalChain("and", p.parseComparison)
}

// parseLogicalChain folds consecutive applications of the same logical
// keyword into one flat LogicalGroup, so "a and b and c" has a single
// three-child node (matching the YAML surface form).
func (p *parser) parseLogicalChain(op string, next func() (Node, error)) (Node, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.tok.kind == tokIdent && p.tok.text == op {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := next()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &LogicalGroup{Op: op, Children: children}, nil
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && isComparisonOp(p.tok.text) {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	return p.parseBinaryChain(p.parseMultiplicative, "+", "-")
}

func (p *parser) parseMultiplicative() (Node, error) {
	return p.parseBinaryChain(p.parseUnary, "*", "/")
}

func (p *parser) parseBinaryChain(next func() (Node, error), ops ...string) (Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && oneOf(p.tok.text, ops) {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.tok.kind == tokIdent && p.tok.text == "not" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: "not", Operand: operand}, nil
	}
	if p.tok.kind == tokOp && p.tok.text == "-" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: "-", Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.tok.kind {
	case tokNumber:
		n := p.tok.num
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Val: NumberVal(n)}, nil

	case tokString:
		s := p.tok.str
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Val: StringVal(s)}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		return p.parseIdent()
	}
	return nil, p.errHere("expected expression")
}

// parseIdent handles keywords, function calls, and property references.
func (p *parser) parseIdent() (Node, error) {
	name := p.tok.text
	offset := p.tok.offset
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch name {
	case "true":
		return &Literal{Val: BoolVal(true)}, nil
	case "false":
		return &Literal{Val: BoolVal(false)}, nil
	case "null":
		return &Literal{Val: Null}, nil
	case "and", "or", "not":
		return nil, &SyntaxError{Token: name, Offset: offset, Msg: "unexpected keyword"}
	}

	// Function call.
	if p.tok.kind == tokLParen {
		spec, ok := registry[name]
		if !ok {
			return nil, &SyntaxError{Token: name, Offset: offset, Msg: "unknown function"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		var args []Node
		if p.tok.kind != tokRParen {
			for {
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.tok.kind != tokComma {
					break
				}
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.expect(tokRParen, "closing parenthesis"); err != nil {
			return nil, err
		}
		if len(args) != spec.arity {
			return nil, &SyntaxError{
				Token:  name,
				Offset: offset,
				Msg:    fmt.Sprintf("wrong argument count: want %d, got %d", spec.arity, len(args)),
			}
		}
		return &FunctionCall{Name: name, Args: args}, nil
	}

	// Namespaced property reference.
	if p.tok.kind == tokDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIdent {
			return nil, p.errHere("expected property name after namespace")
		}
		key := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch name {
		case "note", "file", "formula":
			return &PropertyRef{Namespace: name, Key: key}, nil
		}
		return nil, &SyntaxError{Token: name, Offset: offset, Msg: "unknown property namespace"}
	}

	// Bare identifier: frontmatter lookup.
	return &PropertyRef{Namespace: "note", Key: name}, nil
}

func isComparisonOp(op string) bool {
	switch op {
	case "==", "!=", ">", ">=", "<", "<=":
		return true
	}
	return false
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
