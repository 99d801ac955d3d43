package jack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"its-hmny.dev/nand2tetris/pkg/jack"
	"its-hmny.dev/nand2tetris/pkg/utils"
)

func TestTypeCheckerEmptyProgramIsError(t *testing.T) {
	checker := jack.NewTypeChecker(jack.Program{})
	require.Error(t, checker.Check())
}

func TestTypeCheckerAcceptsResolvableProgram(t *testing.T) {
	fields := utils.OrderedMap[string, jack.Variable]{}
	fields.Set("size", jack.Variable{Name: "size", VarType: jack.Field, DataType: jack.DataType{Main: jack.Int}})

	subs := utils.OrderedMap[string, jack.Subroutine]{}
	subs.Set("main", jack.Subroutine{
		Name: "main", Type: jack.Function, Return: jack.DataType{Main: jack.Void},
		Statements: []jack.Statement{
			jack.VarStmt{Vars: []jack.Variable{{Name: "x", VarType: jack.Local, DataType: jack.DataType{Main: jack.Int}}}},
			jack.LetStmt{Lhs: jack.VarExpr{Var: "x"}, Rhs: jack.LiteralExpr{Type: jack.DataType{Main: jack.Int}, Value: "1"}},
			jack.ReturnStmt{},
		},
	})

	program := jack.Program{"Main": jack.Class{Name: "Main", Fields: fields, Subroutines: subs}}

	checker := jack.NewTypeChecker(program)
	assert.NoError(t, checker.Check())
}

func TestTypeCheckerRejectsUnresolvedVariable(t *testing.T) {
	subs := utils.OrderedMap[string, jack.Subroutine]{}
	subs.Set("main", jack.Subroutine{
		Name: "main", Type: jack.Function, Return: jack.DataType{Main: jack.Void},
		Statements: []jack.Statement{
			jack.LetStmt{Lhs: jack.VarExpr{Var: "neverDeclared"}, Rhs: jack.LiteralExpr{Type: jack.DataType{Main: jack.Int}, Value: "1"}},
			jack.ReturnStmt{},
		},
	})

	program := jack.Program{"Main": jack.Class{Name: "Main", Subroutines: subs}}

	checker := jack.NewTypeChecker(program)
	err := checker.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnknownIdentifier")
}

func TestTypeCheckerRejectsUnknownCall(t *testing.T) {
	subs := utils.OrderedMap[string, jack.Subroutine]{}
	subs.Set("main", jack.Subroutine{
		Name: "main", Type: jack.Function, Return: jack.DataType{Main: jack.Void},
		Statements: []jack.Statement{
			jack.DoStmt{FuncCall: jack.FuncCallExpr{IsExtCall: false, FuncName: "doesNotExist"}},
			jack.ReturnStmt{},
		},
	})

	program := jack.Program{"Main": jack.Class{Name: "Main", Subroutines: subs}}

	checker := jack.NewTypeChecker(program)
	err := checker.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnknownIdentifier")
}

func TestTypeCheckerResolvesOSCall(t *testing.T) {
	subs := utils.OrderedMap[string, jack.Subroutine]{}
	subs.Set("main", jack.Subroutine{
		Name: "main", Type: jack.Function, Return: jack.DataType{Main: jack.Void},
		Statements: []jack.Statement{
			jack.DoStmt{FuncCall: jack.FuncCallExpr{
				IsExtCall: true, Var: "Output", FuncName: "printInt",
				Arguments: []jack.Expression{jack.LiteralExpr{Type: jack.DataType{Main: jack.Int}, Value: "1"}},
			}},
			jack.ReturnStmt{},
		},
	})

	program := jack.Program{"Main": jack.Class{Name: "Main", Subroutines: subs}}

	checker := jack.NewTypeChecker(program)
	assert.NoError(t, checker.Check())
}
