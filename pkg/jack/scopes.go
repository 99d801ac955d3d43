package jack

import (
	"fmt"
	"strings"

	"its-hmny.dev/nand2tetris/pkg/utils"
)

type Scope struct {
	name    string
	entries utils.Stack[Variable]
}

type ScopeTable struct {
	static utils.Stack[Variable]

	local     Scope
	field     Scope
	parameter Scope
}

func NewScopeTable() *ScopeTable {
	return &ScopeTable{
		static:    utils.Stack[Variable]{},
		local:     Scope{},
		field:     Scope{},
		parameter: Scope{},
	}
}

func (st *ScopeTable) PushClassScope(class string) {
	newScope := fmt.Sprintf("%s.Global", class)
	st.field = Scope{name: newScope, entries: utils.Stack[Variable]{}}
}

func (st *ScopeTable) PopClassScope() { st.field = Scope{} }

func (st *ScopeTable) PushSubRoutineScope(method string) {
	newScope := strings.ReplaceAll(st.GetScope(), "Global", method)
	st.local = Scope{name: newScope, entries: utils.Stack[Variable]{}}
	st.parameter = Scope{name: newScope, entries: utils.Stack[Variable]{}}
}

func (st *ScopeTable) PopSubroutineScope() { st.local, st.parameter = Scope{}, Scope{} }

func (st *ScopeTable) GetScope() string {
	if st.local.name != "" && st.parameter.name != "" {
		return st.local.name
	}

	if st.field.name != "" {
		return st.field.name
	}

	return "Global"
}

func (st *ScopeTable) RegisterVariable(new Variable) error {
	var scope *utils.Stack[Variable]

	switch new.VarType {
	case Local:
		scope = &st.local.entries
	case Field:
		scope = &st.field.entries
	case Parameter:
		scope = &st.parameter.entries
	case Static:
		scope = &st.static
	default:
		return fmt.Errorf("unrecognized variable kind '%s' for '%s'", new.VarType, new.Name)
	}

	for idx := 0; idx < scope.Len(); idx++ {
		if existing, _ := scope.At(idx); existing.Name == new.Name {
			return fmt.Errorf("duplicate declaration of '%s' in the same scope", new.Name)
		}
	}

	scope.Push(new)
	return nil
}

func (st *ScopeTable) ResolveVariable(name string) (uint16, Variable, error) {
	scopes := []utils.Stack[Variable]{st.local.entries, st.parameter.entries, st.field.entries, st.static}

	for _, scope := range scopes {
		// Walk in true declaration order (0 = first pushed), since the index
		// returned here is the actual VM segment offset the variable was assigned.
		for idx := 0; idx < scope.Len(); idx++ {
			entry, _ := scope.At(idx)
			if entry.Name == name {
				return uint16(idx), entry, nil
			}
		}
	}

	return 0, Variable{}, fmt.Errorf("variable '%s' undeclared, not found in any scope", name)
}
