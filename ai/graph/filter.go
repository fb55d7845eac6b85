package graph

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CompileFilter compiles a CEL expression into a FindNodes predicate.
// The expression sees three variables: id (string), type (string) and
// properties (map of unwrapped property values). A node where the
// expression errors at runtime (such as indexing a missing property) is
// treated as a non-match.
//
//	type == "Character" && properties["role"] == "protagonist"
func CompileFilter(expr string) (func(*Node) bool, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("properties", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create filter environment")
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile filter %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build filter program %q", expr)
	}

	return func(n *Node) bool {
		out, _, err := prg.Eval(map[string]any{
			"id":         n.ID,
			"type":       string(n.Type),
			"properties": n.Properties.AnyMap(),
		})
		if err != nil {
			return false
		}
		matched, ok := out.Value().(bool)
		return ok && matched
	}, nil
}
