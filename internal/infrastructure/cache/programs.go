// Package cache holds compiled predicate programs shared by all sessions.
package cache

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	gocache "github.com/patrickmn/go-cache"
)

// Var is the name instances are bound to in predicate expressions:
//
//	e.title.startsWith("F") && e.stars >= 4
const Var = "e"

// Programs compiles CEL predicates over a column map and caches the result.
// It is safe for concurrent use.
type Programs struct {
	env   *cel.Env
	cache *gocache.Cache
}

// NewPrograms creates a cache whose entries expire after ttl of disuse.
// Expired programs are dropped lazily; no janitor goroutine runs.
func NewPrograms(ttl time.Duration) (*Programs, error) {
	env, err := cel.NewEnv(cel.Variable(Var, cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &Programs{
		env:   env,
		cache: gocache.New(ttl, 0),
	}, nil
}

// Program returns the compiled program of expr.
func (p *Programs) Program(expr string) (cel.Program, error) {
	if v, ok := p.cache.Get(expr); ok {
		return v.(cel.Program), nil
	}

	ast, iss := p.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile predicate: %w", iss.Err())
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build predicate: %w", err)
	}

	p.cache.SetDefault(expr, prg)
	return prg, nil
}

// Match evaluates expr against one column map.
func (p *Programs) Match(expr string, values map[string]any) (bool, error) {
	prg, err := p.Program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{Var: values})
	if err != nil {
		return false, fmt.Errorf("evaluate predicate: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q returned %T, want bool", expr, out.Value())
	}
	return b, nil
}

// Len is the number of cached programs, expired ones included.
func (p *Programs) Len() int {
	return p.cache.ItemCount()
}
