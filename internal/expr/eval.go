package expr

import (
	"math"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// Env is the short-lived context for one evaluation pass. The pass instant
// (now/today) is sampled once at construction and held constant so that
// every reference to "now" within the pass agrees; formula results are
// memoized per note for the lifetime of the Env. An Env must not be reused
// across resolution passes and is not safe for concurrent use.
type Env struct {
	now      time.Time
	today    time.Time
	formulas map[string]Node

	memo   map[memoKey]memoResult
	path   []string // formula recursion stack for cycle detection
	cycles []*CycleError
}

type memoKey struct {
	note    string
	formula string
}

type memoResult struct {
	val Value
	err error
}

// NewEnv creates an evaluation pass context over the given formula table.
// The table may be nil when no formulas are in scope.
func NewEnv(formulas map[string]Node) *Env {
	now := time.Now()
	y, m, d := now.Date()
	return &Env{
		now:      now,
		today:    time.Date(y, m, d, 0, 0, 0, 0, now.Location()),
		formulas: formulas,
		memo:     make(map[memoKey]memoResult),
	}
}

// Eval walks the AST against a note's property bag and produces a typed
// value. Evaluation is pure: the only state it touches is the Env memo.
func Eval(node Node, note *models.Note, env *Env) (Value, error) {
	switch n := node.(type) {
	case *Literal:
		return n.Val, nil
	case *PropertyRef:
		return env.evalProperty(n, note)
	case *UnaryOp:
		return env.evalUnary(n, note)
	case *BinaryOp:
		return env.evalBinary(n, note)
	case *LogicalGroup:
		return env.evalLogical(n, note)
	case *FunctionCall:
		return env.evalCall(n, note)
	}
	return Null, &TypeError{Node: node.String(), Want: "known node kind", Got: []Kind{KindNull}}
}

func (env *Env) evalProperty(n *PropertyRef, note *models.Note) (Value, error) {
	switch n.Namespace {
	case "note":
		if note.Frontmatter == nil {
			return Null, nil
		}
		raw, ok := note.Frontmatter[n.Key]
		if !ok {
			return Null, nil
		}
		return FromAny(raw), nil

	case "file":
		switch n.Key {
		case "name":
			return StringVal(note.Meta.Name), nil
		case "ext":
			return StringVal(note.Meta.Ext), nil
		case "folder":
			return StringVal(note.Meta.Folder), nil
		case "path":
			return StringVal(note.Path), nil
		case "size":
			return NumberVal(float64(note.Meta.Size)), nil
		case "mtime":
			return DateVal(note.Meta.ModTime), nil
		case "title":
			return StringVal(note.Title), nil
		}
		return Null, nil

	case "formula":
		return env.evalFormula(n.Key, note)
	}
	return Null, nil
}

// Cycles returns the formula cycles recorded so far in this pass and
// clears the list. Callers fold them into per-note diagnostics.
func (env *Env) Cycles() []*CycleError {
	out := env.cycles
	env.cycles = nil
	return out
}

// evalFormula resolves formula.<name> lazily, memoized per note and per
// pass, tracking the recursion path to detect reference cycles at any
// depth. A cycle aborts only the affected formula: it resolves to Null
// (recorded via Cycles) so containing expressions keep evaluating.
func (env *Env) evalFormula(name string, note *models.Note) (Value, error) {
	key := memoKey{note: note.Path, formula: name}
	if cached, ok := env.memo[key]; ok {
		return cached.val, cached.err
	}
	for _, seen := range env.path {
		if seen == name {
			env.cycles = append(env.cycles, &CycleError{Path: append(append([]string{}, env.path...), name)})
			env.memo[key] = memoResult{val: Null}
			return Null, nil
		}
	}
	body, ok := env.formulas[name]
	if !ok {
		return Null, nil
	}
	env.path = append(env.path, name)
	val, err := Eval(body, note, env)
	env.path = env.path[:len(env.path)-1]
	env.memo[key] = memoResult{val: val, err: err}
	return val, err
}

func (env *Env) evalUnary(n *UnaryOp, note *models.Note) (Value, error) {
	operand, err := Eval(n.Operand, note, env)
	if err != nil {
		return Null, err
	}
	switch n.Op {
	case "not":
		return BoolVal(!operand.Truthy()), nil
	case "-":
		if operand.Kind != KindNumber {
			return Null, &TypeError{Node: n.String(), Want: "number", Got: []Kind{operand.Kind}}
		}
		return NumberVal(-operand.Num), nil
	}
	return Null, &TypeError{Node: n.String(), Want: "unary operator", Got: []Kind{operand.Kind}}
}

func (env *Env) evalBinary(n *BinaryOp, note *models.Note) (Value, error) {
	left, err := Eval(n.Left, note, env)
	if err != nil {
		return Null, err
	}
	right, err := Eval(n.Right, note, env)
	if err != nil {
		return Null, err
	}

	switch n.Op {
	case "==", "!=":
		return evalEquality(n, left, right)
	case ">", ">=", "<", "<=":
		return evalOrdering(n, left, right)
	case "+", "-", "*", "/":
		return evalArithmetic(n, left, right)
	}
	return Null, &TypeError{Node: n.String(), Want: "known operator", Got: []Kind{left.Kind, right.Kind}}
}

// evalEquality allows a null operand as an existence check; any other
// cross-kind comparison is a type error rather than a silent false.
func evalEquality(n *BinaryOp, left, right Value) (Value, error) {
	if left.IsNull() || right.IsNull() {
		eq := left.IsNull() && right.IsNull()
		if n.Op == "!=" {
			eq = !eq
		}
		return BoolVal(eq), nil
	}
	if left.Kind != right.Kind {
		return Null, &TypeError{Node: n.String(), Want: "matching kinds", Got: []Kind{left.Kind, right.Kind}}
	}
	eq := left.Equal(right)
	if n.Op == "!=" {
		eq = !eq
	}
	return BoolVal(eq), nil
}

func evalOrdering(n *BinaryOp, left, right Value) (Value, error) {
	if left.Kind != right.Kind {
		return Null, &TypeError{Node: n.String(), Want: "matching orderable kinds", Got: []Kind{left.Kind, right.Kind}}
	}
	var cmp int
	switch left.Kind {
	case KindNumber:
		switch {
		case left.Num < right.Num:
			cmp = -1
		case left.Num > right.Num:
			cmp = 1
		}
	case KindString:
		cmp = strings.Compare(left.Str, right.Str)
	case KindDate:
		cmp = left.Time.Compare(right.Time)
	default:
		return Null, &TypeError{Node: n.String(), Want: "number, string or date", Got: []Kind{left.Kind, right.Kind}}
	}
	switch n.Op {
	case ">":
		return BoolVal(cmp > 0), nil
	case ">=":
		return BoolVal(cmp >= 0), nil
	case "<":
		return BoolVal(cmp < 0), nil
	default:
		return BoolVal(cmp <= 0), nil
	}
}

// evalArithmetic applies numeric arithmetic plus the one documented date
// rule: subtracting two dates yields a duration in milliseconds.
func evalArithmetic(n *BinaryOp, left, right Value) (Value, error) {
	if n.Op == "-" && left.Kind == KindDate && right.Kind == KindDate {
		return NumberVal(float64(left.Time.Sub(right.Time).Milliseconds())), nil
	}
	if left.Kind != KindNumber || right.Kind != KindNumber {
		return Null, &TypeError{Node: n.String(), Want: "numbers", Got: []Kind{left.Kind, right.Kind}}
	}
	switch n.Op {
	case "+":
		return NumberVal(left.Num + right.Num), nil
	case "-":
		return NumberVal(left.Num - right.Num), nil
	case "*":
		return NumberVal(left.Num * right.Num), nil
	default:
		if right.Num == 0 {
			return Null, &TypeError{Node: n.String(), Want: "non-zero divisor", Got: []Kind{right.Kind}}
		}
		return NumberVal(left.Num / right.Num), nil
	}
}

// evalLogical short-circuits: "and" stops at the first falsy child, "or"
// at the first truthy one, and both return the deciding child's value
// rather than a bare boolean so nested predicates can double as existence
// checks. A "not" group negates the conjunction of its children.
func (env *Env) evalLogical(n *LogicalGroup, note *models.Note) (Value, error) {
	switch n.Op {
	case "and":
		var last Value
		for _, child := range n.Children {
			v, err := Eval(child, note, env)
			if err != nil {
				return Null, err
			}
			if !v.Truthy() {
				return v, nil
			}
			last = v
		}
		return last, nil

	case "or":
		var last Value
		for _, child := range n.Children {
			v, err := Eval(child, note, env)
			if err != nil {
				return Null, err
			}
			if v.Truthy() {
				return v, nil
			}
			last = v
		}
		return last, nil

	case "not":
		for _, child := range n.Children {
			v, err := Eval(child, note, env)
			if err != nil {
				return Null, err
			}
			if !v.Truthy() {
				return BoolVal(true), nil
			}
		}
		return BoolVal(false), nil
	}
	return Null, &TypeError{Node: n.String(), Want: "and/or/not group", Got: nil}
}

func (env *Env) evalCall(n *FunctionCall, note *models.Note) (Value, error) {
	switch n.Name {
	case "now":
		return DateVal(env.now), nil
	case "today":
		return DateVal(env.today), nil

	case "if":
		cond, err := Eval(n.Args[0], note, env)
		if err != nil {
			return Null, err
		}
		if cond.Truthy() {
			return Eval(n.Args[1], note, env)
		}
		return Eval(n.Args[2], note, env)
	}

	// Remaining built-ins evaluate all arguments eagerly.
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		v, err := Eval(a, note, env)
		if err != nil {
			return Null, err
		}
		args[i] = v
	}

	switch n.Name {
	case "hasTag":
		s, err := wantString(n, args[0])
		if err != nil {
			return Null, err
		}
		return BoolVal(containsString(note.Meta.Tags, s)), nil

	case "inFolder":
		s, err := wantString(n, args[0])
		if err != nil {
			return Null, err
		}
		return BoolVal(inFolder(note.Meta.Folder, s)), nil

	case "linksTo":
		s, err := wantString(n, args[0])
		if err != nil {
			return Null, err
		}
		return BoolVal(containsString(note.Links, s)), nil

	case "date":
		return toDate(n, args[0])

	case "min":
		a, b, err := wantNumbers(n, args[0], args[1])
		if err != nil {
			return Null, err
		}
		return NumberVal(math.Min(a, b)), nil
	case "max":
		a, b, err := wantNumbers(n, args[0], args[1])
		if err != nil {
			return Null, err
		}
		return NumberVal(math.Max(a, b)), nil
	case "abs":
		if args[0].Kind != KindNumber {
			return Null, &TypeError{Node: n.String(), Want: "number", Got: []Kind{args[0].Kind}}
		}
		return NumberVal(math.Abs(args[0].Num)), nil
	case "round":
		if args[0].Kind != KindNumber {
			return Null, &TypeError{Node: n.String(), Want: "number", Got: []Kind{args[0].Kind}}
		}
		return NumberVal(math.Round(args[0].Num)), nil
	}
	return Null, &TypeError{Node: n.String(), Want: "registered function", Got: nil}
}

// dateLayouts are accepted by date() on string input, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toDate(n *FunctionCall, v Value) (Value, error) {
	switch v.Kind {
	case KindDate:
		return v, nil
	case KindString:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return DateVal(t), nil
			}
		}
	}
	return Null, &TypeError{Node: n.String(), Want: "date", Got: []Kind{v.Kind}}
}

func wantString(n *FunctionCall, v Value) (string, error) {
	if v.Kind != KindString {
		return "", &TypeError{Node: n.String(), Want: "string", Got: []Kind{v.Kind}}
	}
	return v.Str, nil
}

func wantNumbers(n *FunctionCall, a, b Value) (float64, float64, error) {
	if a.Kind != KindNumber || b.Kind != KindNumber {
		return 0, 0, &TypeError{Node: n.String(), Want: "numbers", Got: []Kind{a.Kind, b.Kind}}
	}
	return a.Num, b.Num, nil
}

func containsString(set []string, want string) bool {
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}

// inFolder matches the folder itself or any subfolder of it.
func inFolder(folder, want string) bool {
	folder = strings.Trim(folder, "/")
	want = strings.Trim(want, "/")
	if want == "" {
		return true
	}
	return folder == want || strings.HasPrefix(folder, want+"/")
}
