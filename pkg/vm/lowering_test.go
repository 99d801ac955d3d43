package vm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"its-hmny.dev/nand2tetris/pkg/asm"
	"its-hmny.dev/nand2tetris/pkg/vm"
)

func TestLowererEmptyProgramIsError(t *testing.T) {
	lowerer := vm.NewLowerer(vm.Program{})
	_, err := lowerer.Lowerer()
	require.Error(t, err)
}

func TestLowererBootstrapSequence(t *testing.T) {
	program := vm.Program{"Main": vm.Module{vm.ReturnOp{}}}
	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lowerer()
	require.NoError(t, err)

	// SP = 256, then a call into Sys.init, per §4.5/§6.2.
	require.True(t, len(out) >= 5)
	assert.Equal(t, asm.AInstruction{Location: "256"}, out[0])
	assert.Equal(t, asm.CInstruction{Dest: "D", Comp: "A"}, out[1])
	assert.Equal(t, asm.AInstruction{Location: "SP"}, out[2])
	assert.Equal(t, asm.CInstruction{Dest: "M", Comp: "D"}, out[3])

	var jumpsToSysInit bool
	for _, instr := range out {
		if a, ok := instr.(asm.AInstruction); ok && a.Location == "Sys.init" {
			jumpsToSysInit = true
		}
	}
	assert.True(t, jumpsToSysInit)
}

func TestLowererConstantPushTemplate(t *testing.T) {
	program := vm.Program{"Main": vm.Module{
		vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 42},
	}}
	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lowerer()
	require.NoError(t, err)

	found := false
	for _, instr := range out {
		if a, ok := instr.(asm.AInstruction); ok && a.Location == "42" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLowererPopIntoConstantIsError(t *testing.T) {
	program := vm.Program{"Main": vm.Module{
		vm.MemoryOp{Operation: vm.Pop, Segment: vm.Constant, Offset: 0},
	}}
	lowerer := vm.NewLowerer(program)
	_, err := lowerer.Lowerer()
	require.Error(t, err)
}

func TestLowererStaticSegmentIsPerFilePrefixed(t *testing.T) {
	program := vm.Program{
		"Foo": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 0}},
		"Bar": vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: 0}},
	}
	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lowerer()
	require.NoError(t, err)

	var symbols []string
	for _, instr := range out {
		if a, ok := instr.(asm.AInstruction); ok && (a.Location == "Foo.0" || a.Location == "Bar.0") {
			symbols = append(symbols, a.Location)
		}
	}
	assert.Contains(t, symbols, "Foo.0")
	assert.Contains(t, symbols, "Bar.0")
}

func TestLowererComparisonLabelsAreUnique(t *testing.T) {
	program := vm.Program{"Main": vm.Module{
		vm.ArithmeticOp{Operation: vm.Eq},
		vm.ArithmeticOp{Operation: vm.Eq},
	}}
	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lowerer()
	require.NoError(t, err)

	var labels []string
	for _, instr := range out {
		if l, ok := instr.(asm.LabelDecl); ok {
			labels = append(labels, l.Name)
		}
	}

	seen := map[string]bool{}
	for _, l := range labels {
		require.False(t, seen[l], "label %q emitted more than once", l)
		seen[l] = true
	}
	// 2 labels (true+join) per 'eq', minted from the shared global counter, plus the
	// return label of the bootstrap's call into 'Sys.init'
	assert.Len(t, labels, 5)
}

func TestLowererLabelDeclAndGotoArePrefixed(t *testing.T) {
	program := vm.Program{"Main": vm.Module{
		vm.FuncDecl{Name: "Main.loop", NLocal: 0},
		vm.LabelDecl{Name: "LOOP"},
		vm.GotoOp{Label: "LOOP", Jump: vm.Unconditional},
	}}
	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lowerer()
	require.NoError(t, err)

	var sawLabel, sawJumpTarget bool
	for _, instr := range out {
		if l, ok := instr.(asm.LabelDecl); ok && l.Name == "Main.loop$LOOP" {
			sawLabel = true
		}
		if a, ok := instr.(asm.AInstruction); ok && a.Location == "Main.loop$LOOP" {
			sawJumpTarget = true
		}
	}
	assert.True(t, sawLabel)
	assert.True(t, sawJumpTarget)
}

func TestLowererFuncDeclZeroesLocals(t *testing.T) {
	program := vm.Program{"Main": vm.Module{
		vm.FuncDecl{Name: "Main.main", NLocal: 2},
	}}
	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lowerer()
	require.NoError(t, err)

	var sawDecl bool
	var pushes int
	for _, instr := range out {
		if l, ok := instr.(asm.LabelDecl); ok && l.Name == "Main.main" {
			sawDecl = true
			continue
		}
		// After the entry label every 'AM=M+1' is one push of the zero in 'D'
		if c, ok := instr.(asm.CInstruction); ok && sawDecl && c == (asm.CInstruction{Dest: "AM", Comp: "M+1"}) {
			pushes++
		}
	}
	assert.True(t, sawDecl)
	assert.Equal(t, 2, pushes) // one zeroed slot per local
}

func TestLowererCallMintsDistinctReturnLabelsPerCaller(t *testing.T) {
	program := vm.Program{"Main": vm.Module{
		vm.FuncDecl{Name: "Main.main", NLocal: 0},
		vm.FuncCallOp{Name: "Foo.bar", NArgs: 0},
		vm.FuncCallOp{Name: "Foo.bar", NArgs: 0},
	}}
	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lowerer()
	require.NoError(t, err)

	var retLabels []string
	for _, instr := range out {
		if l, ok := instr.(asm.LabelDecl); ok && strings.HasPrefix(l.Name, "Main.main$ret.") {
			retLabels = append(retLabels, l.Name)
		}
	}
	require.Len(t, retLabels, 2)
	assert.NotEqual(t, retLabels[0], retLabels[1])
}

func TestLowererReturnUnwindsFrame(t *testing.T) {
	program := vm.Program{"Main": vm.Module{vm.ReturnOp{}}}
	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lowerer()
	require.NoError(t, err)

	var sawFrame, sawRet bool
	for _, instr := range out {
		if a, ok := instr.(asm.AInstruction); ok {
			if a.Location == "Main.FRAME" {
				sawFrame = true
			}
			if a.Location == "Main.RET" {
				sawRet = true
			}
		}
	}
	assert.True(t, sawFrame)
	assert.True(t, sawRet)
}
