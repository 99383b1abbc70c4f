package expr

// funcSpec declares a built-in's fixed arity. Calling an unregistered name,
// or a registered one with the wrong argument count, is a parse-time error.
type funcSpec struct {
	arity int
}

// registry is the fixed set of built-ins. There is no extension point: the
// expression language stays pure and side-effect-free.
var registry = map[string]funcSpec{
	// predicates over file metadata and resolved links
	"hasTag":   {arity: 1},
	"inFolder": {arity: 1},
	"linksTo":  {arity: 1},

	// date functions
	"date":  {arity: 1},
	"now":   {arity: 0},
	"today": {arity: 0},

	// conditional and arithmetic helpers
	"if":    {arity: 3},
	"min":   {arity: 2},
	"max":   {arity: 2},
	"abs":   {arity: 1},
	"round": {arity: 1},
}

// KnownFunction reports whether name is a registered built-in.
func KnownFunction(name string) bool {
	_, ok := registry[name]
	return ok
}
