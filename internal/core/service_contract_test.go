package core

import (
	"fmt"
	"go/ast"
	"go/types"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
)

const corePkgPath = "gravecore/internal/core"

func TestServiceStructContract(t *testing.T) {
	pkg := loadCorePackage(t)

	obj := pkg.Types.Scope().Lookup("Service")
	if obj == nil {
		t.Fatalf("Service type not found in package")
	}
	structType, ok := obj.Type().Underlying().(*types.Struct)
	if !ok {
		t.Fatalf("Service is not a struct")
	}

	qualifier := func(p *types.Package) string {
		if p == nil {
			return ""
		}
		return p.Path()
	}
	fields := make(map[string]string, structType.NumFields())
	for i := 0; i < structType.NumFields(); i++ {
		field := structType.Field(i)
		fields[field.Name()] = types.TypeString(field.Type(), qualifier)
	}

	required := map[string]string{
		"store":     "gravecore/pkg/domain.PersistentStore",
		"engine":    "*gravecore/pkg/domain.RulesEngine",
		"clock":     corePkgPath + ".Clock",
		"now":       "func() time.Time",
		"logger":    corePkgPath + ".Logger",
		"audit":     corePkgPath + ".AuditRecorder",
		"publisher": corePkgPath + ".ChangePublisher",
		"mu":        "sync.RWMutex",
	}

	var problems []string
	for name, want := range required {
		got, ok := fields[name]
		switch {
		case !ok:
			problems = append(problems, "missing "+name)
		case got != want:
			problems = append(problems, fmt.Sprintf("%s: want %s, got %s", name, want, got))
		}
	}
	if len(problems) > 0 {
		_, file, line, _ := runtime.Caller(0)
		t.Fatalf("service struct contract violated (%s:%d): %s", filepath.Base(file), line, strings.Join(problems, "; "))
	}
}

func TestServiceOperationsUseRun(t *testing.T) {
	pkg := loadCorePackage(t)

	var violations []string
	for _, name := range []string{"service.go", "backup.go"} {
		file := findFile(t, pkg, name)
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Body == nil || !ast.IsExported(fn.Name.Name) {
				continue
			}
			recvName, isService := serviceReceiverName(fn)
			if !isService || !methodTakesContext(fn) {
				continue
			}
			if fn.Name.Name == "ListBackups" || methodUsesRun(fn, recvName) {
				continue
			}
			pos := pkg.Fset.Position(fn.Pos())
			violations = append(violations, fmt.Sprintf("%s:%d %s", filepath.Base(pos.Filename), pos.Line, fn.Name.Name))
		}
	}
	if len(violations) > 0 {
		t.Fatalf("service operations must delegate to run:\n%s", strings.Join(violations, "\n"))
	}
}

func TestRegisterRuleUsesServiceEngine(t *testing.T) {
	pkg := loadCorePackage(t)
	fn := findFuncDecl(t, findFile(t, pkg, "service.go"), "RegisterRule")

	found := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "Register" {
			return true
		}
		if selectorMatches(sel.X, "s", "engine") {
			found = true
			return false
		}
		return true
	})
	if !found {
		t.Fatalf("RegisterRule no longer registers with the store engine")
	}
}

var (
	corePkgOnce sync.Once
	corePkg     *packages.Package
	corePkgErr  error
)

func loadCorePackage(t *testing.T) *packages.Package {
	t.Helper()

	corePkgOnce.Do(func() {
		cfg := &packages.Config{
			Mode:  packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedCompiledGoFiles | packages.NeedFiles,
			Tests: true,
		}
		pkgs, err := packages.Load(cfg, corePkgPath)
		if err != nil {
			corePkgErr = fmt.Errorf("load core package: %w", err)
			return
		}
		for _, pkg := range pkgs {
			if len(pkg.Errors) > 0 {
				corePkgErr = fmt.Errorf("package load errors: %v", pkg.Errors)
				return
			}
			if pkg.PkgPath == corePkgPath {
				corePkg = pkg
				return
			}
		}
		corePkgErr = fmt.Errorf("core package not found in load results")
	})

	if corePkgErr != nil {
		t.Fatalf("core package load: %v", corePkgErr)
	}
	return corePkg
}

func findFile(t *testing.T, pkg *packages.Package, target string) *ast.File {
	t.Helper()
	for _, file := range pkg.Syntax {
		if filepath.Base(pkg.Fset.Position(file.Pos()).Filename) == target {
			return file
		}
	}
	t.Fatalf("failed to locate %s in package", target)
	return nil
}

func findFuncDecl(t *testing.T, file *ast.File, name string) *ast.FuncDecl {
	t.Helper()
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == name {
			return fn
		}
	}
	t.Fatalf("failed to locate %s function", name)
	return nil
}

func serviceReceiverName(fn *ast.FuncDecl) (string, bool) {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return "", false
	}
	recv := fn.Recv.List[0]
	star, ok := recv.Type.(*ast.StarExpr)
	if !ok {
		return "", false
	}
	ident, ok := star.X.(*ast.Ident)
	if !ok || ident.Name != "Service" || len(recv.Names) == 0 {
		return "", false
	}
	return recv.Names[0].Name, true
}

func methodTakesContext(fn *ast.FuncDecl) bool {
	params := fn.Type.Params.List
	if len(params) == 0 {
		return false
	}
	sel, ok := params[0].Type.(*ast.SelectorExpr)
	return ok && sel.Sel.Name == "Context"
}

func methodUsesRun(fn *ast.FuncDecl, receiver string) bool {
	found := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if ident, ok := sel.X.(*ast.Ident); ok && ident.Name == receiver && sel.Sel.Name == "run" {
			found = true
			return false
		}
		return true
	})
	return found
}

func selectorMatches(expr ast.Expr, recvName, selName string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != selName {
		return false
	}
	ident, ok := sel.X.(*ast.Ident)
	return ok && ident.Name == recvName
}
