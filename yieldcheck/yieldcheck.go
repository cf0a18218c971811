// Package yieldcheck defines an analyzer reporting calls which suspend the
// current fiber from code that cannot be running on a fiber.
//
// The fiber package finds the current fiber at run time and panics when there
// is none. yieldcheck catches the common mistakes before that happens:
//
//   - suspending from the host loop: main, init, or a function calling
//     (*fiber.Scheduler).Tick or Run;
//   - suspending from a function literal started with a go statement, since
//     goroutines are not fibers;
//   - ticking the scheduler from a fiber, which is not allowed.
//
// The analysis is syntactic: calls are attributed to the innermost function
// that contains them, and functions called indirectly are not followed.
package yieldcheck

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

const doc = `report fiber suspensions outside of fibers

The yieldcheck analyzer reports calls to the functions of the fiber package
which suspend the current fiber (Yield, Sleep, Poll, Await, WaitEvent,
Receive, WaitFor, YieldForever) made from the host loop or from goroutines,
and calls to (*Scheduler).Tick or Run made from fibers.`

// FiberPath is the import path of the fiber package.
const FiberPath = "github.com/stealthrocket/fiber"

var Analyzer = &analysis.Analyzer{
	Name:     "yieldcheck",
	Doc:      doc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

var suspending = map[string]bool{
	"Yield":        true,
	"Sleep":        true,
	"Poll":         true,
	"Await":        true,
	"WaitEvent":    true,
	"Receive":      true,
	"WaitFor":      true,
	"YieldForever": true,
}

var driving = map[string]bool{
	"Tick": true,
	"Run":  true,
}

func run(pass *analysis.Pass) (any, error) {
	in := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	filter := []ast.Node{(*ast.CallExpr)(nil)}

	type call struct {
		expr  *ast.CallExpr
		name  string
		stack []ast.Node
	}
	var yields, ticks []call
	hosts := make(map[*ast.FuncDecl]bool)

	in.WithStack(filter, func(n ast.Node, push bool, stack []ast.Node) bool {
		if !push {
			return true
		}
		expr := n.(*ast.CallExpr)
		fn, ok := typeutil.Callee(pass.TypesInfo, expr).(*types.Func)
		if !ok || fn.Pkg() == nil || fn.Pkg().Path() != FiberPath {
			return true
		}
		c := call{expr: expr, name: fn.Name(), stack: append([]ast.Node(nil), stack...)}
		switch {
		case isSchedulerMethod(fn) && driving[fn.Name()]:
			ticks = append(ticks, c)
			if decl, ok := enclosing(stack).(*ast.FuncDecl); ok {
				hosts[decl] = true
			}
		case fn.Signature().Recv() == nil && suspending[fn.Name()]:
			yields = append(yields, c)
		}
		return true
	})

	for _, c := range yields {
		switch fn := enclosing(c.stack).(type) {
		case *ast.FuncDecl:
			if hosts[fn] || isEntryPoint(pass, fn) {
				pass.Reportf(c.expr.Pos(), "fiber.%s called from the host loop in %s, outside of any fiber", c.name, fn.Name.Name)
			}
		case *ast.FuncLit:
			if startedByGo(c.stack, fn) {
				pass.Reportf(c.expr.Pos(), "fiber.%s called from a goroutine; goroutines are not fibers", c.name)
			}
		}
	}

	for _, c := range ticks {
		if inFiber(pass, c.stack) {
			pass.Reportf(c.expr.Pos(), "(*fiber.Scheduler).%s called from a fiber", c.name)
		}
	}
	return nil, nil
}

func isSchedulerMethod(fn *types.Func) bool {
	recv := fn.Signature().Recv()
	if recv == nil {
		return false
	}
	t := recv.Type()
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	named, ok := t.(*types.Named)
	return ok && named.Obj().Name() == "Scheduler"
}

func isEntryPoint(pass *analysis.Pass, fn *ast.FuncDecl) bool {
	if fn.Recv != nil {
		return false
	}
	switch fn.Name.Name {
	case "init":
		return true
	case "main":
		return pass.Pkg.Name() == "main"
	}
	return false
}

// enclosing returns the innermost function declaration or literal of the
// stack, excluding its last element.
func enclosing(stack []ast.Node) ast.Node {
	for i := len(stack) - 2; i >= 0; i-- {
		switch n := stack[i].(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			return n
		}
	}
	return nil
}

// startedByGo reports whether lit is the function of a go statement.
func startedByGo(stack []ast.Node, lit *ast.FuncLit) bool {
	for i := len(stack) - 1; i > 0; i-- {
		if stack[i] != lit {
			continue
		}
		if call, ok := stack[i-1].(*ast.CallExpr); ok && call.Fun == lit && i >= 2 {
			_, ok := stack[i-2].(*ast.GoStmt)
			return ok
		}
		return false
	}
	return false
}

// inFiber reports whether one of the function literals enclosing the last
// element of the stack is passed to (*fiber.Scheduler).New.
func inFiber(pass *analysis.Pass, stack []ast.Node) bool {
	for i := len(stack) - 2; i > 0; i-- {
		switch n := stack[i].(type) {
		case *ast.FuncDecl:
			return false
		case *ast.FuncLit:
			call, ok := stack[i-1].(*ast.CallExpr)
			if !ok || len(call.Args) == 0 || call.Args[0] != n {
				continue
			}
			fn, ok := typeutil.Callee(pass.TypesInfo, call).(*types.Func)
			if ok && fn.Pkg() != nil && fn.Pkg().Path() == FiberPath && isSchedulerMethod(fn) && fn.Name() == "New" {
				return true
			}
		}
	}
	return false
}
