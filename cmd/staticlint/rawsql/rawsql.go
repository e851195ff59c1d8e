// Package rawsql reports SQL statements assembled at run time with
// fmt.Sprintf or string concatenation instead of query parameters.
package rawsql

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis"
)

// Analyzer checks the query argument of the database/sql style methods.
var Analyzer = &analysis.Analyzer{
	Name: "rawsql",
	Doc:  "reports SQL queries built with fmt.Sprintf or string concatenation",
	Run:  run,
}

// queryMethods maps a method name to the position of its query argument.
var queryMethods = map[string]int{
	"Exec":            0,
	"Query":           0,
	"QueryRow":        0,
	"Prepare":         0,
	"ExecContext":     1,
	"QueryContext":    1,
	"QueryRowContext": 1,
	"PrepareContext":  1,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			position, ok := queryMethods[sel.Sel.Name]
			if !ok || len(call.Args) <= position {
				return true
			}
			if _, isMethod := pass.TypesInfo.Selections[sel]; !isMethod {
				return true
			}

			checkQuery(pass, call.Args[position])

			return true
		})
	}

	return nil, nil
}

func checkQuery(pass *analysis.Pass, query ast.Expr) {
	query = ast.Unparen(query)

	typeAndValue, ok := pass.TypesInfo.Types[query]
	if !ok || typeAndValue.Value != nil || !isString(typeAndValue.Type) {
		return
	}

	switch expr := query.(type) {
	case *ast.CallExpr:
		if isSprintf(pass, expr) {
			pass.Reportf(query.Pos(), "SQL query built with fmt.Sprintf, use query parameters")
		}
	case *ast.BinaryExpr:
		if expr.Op == token.ADD {
			pass.Reportf(query.Pos(), "SQL query built by string concatenation, use query parameters")
		}
	}
}

func isString(t types.Type) bool {
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsString != 0
}

func isSprintf(pass *analysis.Pass, call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Sprintf" {
		return false
	}

	fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)

	return ok && fn.Pkg() != nil && fn.Pkg().Path() == "fmt"
}
