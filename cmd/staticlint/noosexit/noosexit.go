// Package noosexit reports calls in main.main that terminate the process
// without running deferred functions: os.Exit and the Fatal family of the
// log package.
package noosexit

import (
	"go/ast"
	"go/types"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/types/typeutil"
)

// Analyzer reports os.Exit, log.Fatal, log.Fatalf, log.Fatalln and the
// matching *log.Logger methods called directly from main.main.
var Analyzer = &analysis.Analyzer{
	Name: "noosexit",
	Doc:  "prohibits os.Exit and log.Fatal* in main.main",
	Run:  run,
}

// exiting maps the full name of every reported function to its diagnostic.
var exiting = map[string]string{
	"os.Exit":               "avoid using os.Exit in main.main",
	"log.Fatal":             "avoid using log.Fatal in main.main",
	"log.Fatalf":            "avoid using log.Fatalf in main.main",
	"log.Fatalln":           "avoid using log.Fatalln in main.main",
	"(*log.Logger).Fatal":   "avoid using (*log.Logger).Fatal in main.main",
	"(*log.Logger).Fatalf":  "avoid using (*log.Logger).Fatalf in main.main",
	"(*log.Logger).Fatalln": "avoid using (*log.Logger).Fatalln in main.main",
}

func run(pass *analysis.Pass) (interface{}, error) {
	if pass.Pkg.Name() != "main" {
		return nil, nil
	}

	for _, file := range pass.Files {
		// Exclude go-build cache files
		filename := pass.Fset.File(file.Pos()).Name()
		if isGoBuildCacheFile(filename) {
			continue
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Name.Name != "main" || fn.Recv != nil || fn.Body == nil {
				continue
			}

			ast.Inspect(fn.Body, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}

				callee, ok := typeutil.Callee(pass.TypesInfo, call).(*types.Func)
				if !ok {
					return true
				}

				if message, found := exiting[callee.FullName()]; found {
					pass.Reportf(call.Pos(), "%s", message)
				}

				return true
			})
		}
	}

	return nil, nil
}

func isGoBuildCacheFile(path string) bool {
	path = filepath.ToSlash(path)
	return strings.Contains(path, "/go-build/") || strings.Contains(path, `\go-build\`)
}
