package jack

import "fmt"

// TypeChecker performs a lightweight pass over an already-parsed 'jack.Program': it does
// not infer or unify expression types, it only verifies that every identifier referenced
// (variable or subroutine call) actually resolves to something declared somewhere, using
// the same 'ScopeTable' and Program lookups the Lowerer relies on. Catching 'UnknownIdentifier'
// here, before lowering, gives a clearer error than an obscure failure mid-codegen.
type TypeChecker struct {
	program  Program
	registry map[string]DataType // return-type registry, OS ABI + every subroutine in 'program'
	scopes   ScopeTable
}

func NewTypeChecker(program Program) TypeChecker {
	registry := NewReturnTypeRegistry()
	for className, class := range program {
		for _, routine := range class.Subroutines.Entries() {
			registry[fmt.Sprintf("%s.%s", className, routine.Name)] = routine.Return
		}
	}
	return TypeChecker{program: program, registry: registry, scopes: ScopeTable{}}
}

// Runs the check over every class in the program, stopping at the first error found.
func (tc *TypeChecker) Check() error {
	if len(tc.program) == 0 {
		return fmt.Errorf("the given 'program' is empty or nil")
	}

	for name, class := range tc.program {
		if err := tc.HandleClass(class); err != nil {
			return fmt.Errorf("class '%s': %w", name, err)
		}
	}

	return nil
}

func (tc *TypeChecker) HandleClass(class Class) error {
	tc.scopes.PushClassScope(class.Name)
	defer tc.scopes.PopClassScope()

	for _, field := range class.Fields.Entries() {
		if err := tc.scopes.RegisterVariable(field); err != nil {
			return fmt.Errorf("field '%s': %w", field.Name, err)
		}
	}

	for _, subroutine := range class.Subroutines.Entries() {
		if err := tc.HandleSubroutine(subroutine); err != nil {
			return fmt.Errorf("subroutine '%s': %w", subroutine.Name, err)
		}
	}

	return nil
}

func (tc *TypeChecker) HandleSubroutine(subroutine Subroutine) error {
	tc.scopes.PushSubRoutineScope(subroutine.Name)
	defer tc.scopes.PopSubroutineScope()

	if subroutine.Type == Method {
		if err := tc.scopes.RegisterVariable(Variable{Name: "__obj", VarType: Parameter, DataType: DataType{Main: Object}}); err != nil {
			return err
		}
	}

	for _, arg := range subroutine.Arguments.Entries() {
		if err := tc.scopes.RegisterVariable(arg); err != nil {
			return fmt.Errorf("argument '%s': %w", arg.Name, err)
		}
	}

	for _, stmt := range subroutine.Statements {
		if err := tc.HandleStatement(stmt); err != nil {
			return err
		}
	}

	return nil
}

func (tc *TypeChecker) HandleStatement(stmt Statement) error {
	switch tStmt := stmt.(type) {
	case DoStmt:
		_, err := tc.HandleExpression(tStmt.FuncCall)
		return err

	case VarStmt:
		for _, v := range tStmt.Vars {
			if err := tc.scopes.RegisterVariable(v); err != nil {
				return err
			}
		}
		return nil

	case LetStmt:
		if _, err := tc.HandleExpression(tStmt.Lhs); err != nil {
			return err
		}
		_, err := tc.HandleExpression(tStmt.Rhs)
		return err

	case IfStmt:
		if _, err := tc.HandleExpression(tStmt.Condition); err != nil {
			return err
		}
		for _, s := range tStmt.ThenBlock {
			if err := tc.HandleStatement(s); err != nil {
				return err
			}
		}
		for _, s := range tStmt.ElseBlock {
			if err := tc.HandleStatement(s); err != nil {
				return err
			}
		}
		return nil

	case WhileStmt:
		if _, err := tc.HandleExpression(tStmt.Condition); err != nil {
			return err
		}
		for _, s := range tStmt.Block {
			if err := tc.HandleStatement(s); err != nil {
				return err
			}
		}
		return nil

	case ReturnStmt:
		if tStmt.Expr == nil {
			return nil
		}
		_, err := tc.HandleExpression(tStmt.Expr)
		return err

	default:
		return fmt.Errorf("UnsupportedConstruct: unrecognized statement %T", stmt)
	}
}

// Resolves an expression's identifiers, returning its declared 'DataType' when known (best
// effort: literals and resolved variables/calls report it, nested arithmetic does not since
// this checker does not unify types).
func (tc *TypeChecker) HandleExpression(expr Expression) (DataType, error) {
	switch tExpr := expr.(type) {
	case VarExpr:
		if tExpr.Var == "this" {
			return DataType{Main: Object}, nil
		}
		_, variable, err := tc.scopes.ResolveVariable(tExpr.Var)
		if err != nil {
			return DataType{}, fmt.Errorf("UnknownIdentifier: %w", err)
		}
		return variable.DataType, nil

	case LiteralExpr:
		return tExpr.Type, nil

	case ArrayExpr:
		if _, err := tc.HandleExpression(VarExpr{Var: tExpr.Var}); err != nil {
			return DataType{}, err
		}
		_, err := tc.HandleExpression(tExpr.Index)
		return DataType{}, err

	case UnaryExpr:
		_, err := tc.HandleExpression(tExpr.Rhs)
		return DataType{}, err

	case BinaryExpr:
		if _, err := tc.HandleExpression(tExpr.Lhs); err != nil {
			return DataType{}, err
		}
		_, err := tc.HandleExpression(tExpr.Rhs)
		return DataType{}, err

	case FuncCallExpr:
		return tc.HandleFuncCallExpr(tExpr)

	default:
		return DataType{}, fmt.Errorf("UnsupportedConstruct: unrecognized expression %T", expr)
	}
}

// Resolves a call's target against the return-type registry (user subroutines + OS ABI),
// falling back to a bound-variable's own class when the call is of the 'Obj.f(...)' shape.
func (tc *TypeChecker) HandleFuncCallExpr(expr FuncCallExpr) (DataType, error) {
	for _, arg := range expr.Arguments {
		if _, err := tc.HandleExpression(arg); err != nil {
			return DataType{}, err
		}
	}

	if !expr.IsExtCall {
		className := tc.scopes.GetScope()
		if idx := indexOfDot(className); idx >= 0 {
			className = className[:idx]
		}
		key := fmt.Sprintf("%s.%s", className, expr.FuncName)
		if ret, found := tc.registry[key]; found {
			return ret, nil
		}
		return DataType{}, fmt.Errorf("UnknownIdentifier: subroutine '%s' not found", key)
	}

	if _, variable, err := tc.scopes.ResolveVariable(expr.Var); err == nil {
		key := fmt.Sprintf("%s.%s", variable.DataType.Subtype, expr.FuncName)
		if ret, found := tc.registry[key]; found {
			return ret, nil
		}
		return DataType{}, fmt.Errorf("UnknownIdentifier: subroutine '%s' not found", key)
	}

	key := fmt.Sprintf("%s.%s", expr.Var, expr.FuncName)
	if ret, found := tc.registry[key]; found {
		return ret, nil
	}
	return DataType{}, fmt.Errorf("UnknownIdentifier: subroutine '%s' not found", key)
}

func indexOfDot(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
