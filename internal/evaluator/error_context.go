package evaluator

import (
	"strings"

	"qlower/internal/ast"
	"qlower/internal/diag"
)

const maxContext = 80

// annotateError fills in the location, source context and callable of an
// evaluation error that was raised without them. The innermost annotation
// wins.
func annotateError(err error, node ast.Node, f *frame) error {
	e, ok := diag.AsError(err)
	if !ok || node == nil || e.Kind == diag.Cancelled {
		return err
	}
	if strings.TrimSpace(e.Context) == "" {
		e.Context = contextOf(node)
	}
	if !e.Pos.IsValid() {
		e.Pos = ast.PosOf(node)
	}
	if e.Callable == "" && f != nil && f.callable != nil {
		e.Callable = f.callable.Name
	}
	return err
}

// contextOf renders node for a diagnostic: compound statements are cut at
// their body.
func contextOf(node ast.Node) string {
	ctx := strings.TrimSpace(node.String())
	if ctx == "" {
		ctx = strings.TrimSpace(node.TokenLiteral())
	}
	switch node.(type) {
	case *ast.IfStatement, *ast.ForStatement, *ast.WhileStatement, *ast.RepeatStatement,
		*ast.WithinApplyStatement, *ast.BlockStatement, *ast.Callable:
		if i := strings.Index(ctx, "{"); i > 0 {
			ctx = strings.TrimSpace(ctx[:i])
		}
	}
	if len(ctx) > maxContext {
		ctx = ctx[:maxContext-3] + "..."
	}
	return ctx
}
