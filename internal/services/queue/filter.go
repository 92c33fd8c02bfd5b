package queuesvc

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

// entryFilter wraps a compiled CEL program evaluated against active
// entries. When disabled, Eval always returns true.
type entryFilter struct {
	prog    cel.Program
	enabled bool
}

func newEntryFilter(expr string) (entryFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return entryFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("service_type", cel.StringType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("assigned_to", cel.StringType),
		cel.Variable("plate", cel.StringType),
		cel.Variable("position", cel.IntType),
		// Milliseconds since the entry joined, relative to now_ms.
		cel.Variable("waited_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return entryFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return entryFilter{}, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return entryFilter{}, &queue.ValidationError{Field: "filter", Reason: "expression must evaluate to bool"}
	}
	prog, err := env.Program(ast)
	if err != nil {
		return entryFilter{}, err
	}
	return entryFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the expression for e. Evaluation errors exclude the entry.
func (f entryFilter) Eval(e queue.Entry, now time.Time) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":           e.ID,
		"status":       string(e.Status),
		"service_type": string(e.ServiceType),
		"customer_id":  e.CustomerID,
		"assigned_to":  e.AssignedTo,
		"plate":        e.Plate,
		"position":     e.Position,
		"waited_ms":    now.Sub(e.JoinedAt).Milliseconds(),
		"now_ms":       now.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func (f entryFilter) apply(entries []queue.Entry, now time.Time) []queue.Entry {
	if !f.enabled {
		return entries
	}
	out := make([]queue.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Eval(e, now) {
			out = append(out, e)
		}
	}
	return out
}
