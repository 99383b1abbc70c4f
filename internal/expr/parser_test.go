package expr

import (
	"errors"
	"reflect"
	"testing"
)

func mustParse(t *testing.T, input string) Node {
	t.Helper()
	n, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q): %v", input, err)
	}
	return n
}

func TestParse_Precedence(t *testing.T) {
	n := mustParse(t, "1 + 2 * 3")
	bin, ok := n.(*BinaryOp)
	if !ok || bin.Op != "+" {
		t.Fatalf("root = %#v, want +", n)
	}
	right, ok := bin.Right.(*BinaryOp)
	if !ok || right.Op != "*" {
		t.Errorf("right = %#v, want *", bin.Right)
	}
}

func TestParse_ParensOverridePrecedence(t *testing.T) {
	n := mustParse(t, "(1 + 2) * 3")
	bin, ok := n.(*BinaryOp)
	if !ok || bin.Op != "*" {
		t.Fatalf("root = %#v, want *", n)
	}
	if left, ok := bin.Left.(*BinaryOp); !ok || left.Op != "+" {
		t.Errorf("left = %#v, want +", bin.Left)
	}
}

func TestParse_LogicalChainsAreFlat(t *testing.T) {
	n := mustParse(t, "a and b and c")
	group, ok := n.(*LogicalGroup)
	if !ok || group.Op != "and" {
		t.Fatalf("root = %#v, want and group", n)
	}
	if len(group.Children) != 3 {
		t.Errorf("children = %d, want 3", len(group.Children))
	}
}

func TestParse_NamespaceRule(t *testing.T) {
	tests := []struct {
		input string
		ns    string
		key   string
	}{
		{"status", "note", "status"},
		{"note.status", "note", "status"},
		{"file.mtime", "file", "mtime"},
		{"formula.age", "formula", "age"},
	}
	for _, tt := range tests {
		ref, ok := mustParse(t, tt.input).(*PropertyRef)
		if !ok {
			t.Fatalf("Parse(%q) is not a PropertyRef", tt.input)
		}
		if ref.Namespace != tt.ns || ref.Key != tt.key {
			t.Errorf("Parse(%q) = %s.%s, want %s.%s", tt.input, ref.Namespace, ref.Key, tt.ns, tt.key)
		}
	}
}

func TestParse_FunctionArity(t *testing.T) {
	if _, err := Parse(`hasTag("project", "extra")`); err == nil {
		t.Error("expected arity error for hasTag/2")
	}
	if _, err := Parse(`bogus("x")`); err == nil {
		t.Error("expected unknown function error")
	}
	var syn *SyntaxError
	_, err := Parse(`bogus("x")`)
	if !errors.As(err, &syn) {
		t.Fatalf("error = %T, want *SyntaxError", err)
	}
	if syn.Token != "bogus" {
		t.Errorf("token = %q, want bogus", syn.Token)
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	inputs := []string{
		"(a and b",
		"1 ++",
		`"unterminated`,
		"note.",
		"and",
		"a ~ b",
	}
	for _, input := range inputs {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q): expected error", input)
		}
	}
}

func TestParse_SyntaxErrorOffset(t *testing.T) {
	_, err := Parse("price > @")
	var syn *SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("error = %T, want *SyntaxError", err)
	}
	if syn.Offset != 8 {
		t.Errorf("offset = %d, want 8", syn.Offset)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	inputs := []string{
		`status == "open"`,
		`not done and priority > 3`,
		`(price + tax) * 1.2 <= budget`,
		`hasTag("project") or inFolder("Research")`,
		`if(due != null, (date(due) - today()) / 86400000, -1)`,
		`formula.age >= 30`,
		`-x + 4`,
	}
	for _, input := range inputs {
		first := mustParse(t, input)
		second := mustParse(t, first.String())
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip of %q:\nfirst:  %s\nsecond: %s", input, first, second)
		}
	}
}

func TestParseLogicalTree_MatchesOperatorGrammar(t *testing.T) {
	tree := map[string]any{
		"and": []any{
			`status == "open"`,
			map[string]any{"or": []any{"a", "b"}},
		},
	}
	n, err := ParseLogicalTree(tree)
	if err != nil {
		t.Fatalf("ParseLogicalTree: %v", err)
	}
	want := mustParse(t, `status == "open" and (a or b)`)
	if !reflect.DeepEqual(n, want) {
		t.Errorf("tree AST = %s, want %s", n, want)
	}
}

func TestParseLogicalTree_EmptyGroup(t *testing.T) {
	_, err := ParseLogicalTree(map[string]any{"and": []any{}})
	if err == nil {
		t.Error("expected error for empty logical group")
	}
}
