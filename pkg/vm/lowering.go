package vm

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"its-hmny.dev/nand2tetris/pkg/asm"
)

// ----------------------------------------------------------------------------
// Vm Translator

// The Lowerer (aka the Translator) takes a whole 'vm.Program' (every module/file that
// makes up a compilation unit) and produces the 'asm.Program' that implements it.
//
// Unlike the Hack and Asm lowerers this one carries state across the whole translation:
// a per-file static-segment prefix, a global counter for comparison labels and, per
// caller function, a counter used to mint unique return-address labels.
type Lowerer struct {
	program Program

	prefix       string          // static-segment/scratch-cell prefix (the current module's stem)
	currentFunc  string          // fully qualified name of the function currently being translated
	cmpCounter   uint            // global counter shared by every 'eq'/'gt'/'lt' emission
	callCounters map[string]uint // per caller-function counter, used to mint '$ret.N' labels
}

// Initializes and returns to the caller a brand new 'Lowerer' (Translator) struct.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p, callCounters: map[string]uint{}}
}

// Triggers the translation process: emits the bootstrap sequence, then walks every module
// in deterministic (lexicographic by filename) order translating operation by operation.
func (l *Lowerer) Lowerer() (asm.Program, error) {
	if len(l.program) == 0 {
		return nil, fmt.Errorf("the given 'program' is empty")
	}

	names := make([]string, 0, len(l.program))
	for name := range l.program {
		names = append(names, name)
	}
	sort.Strings(names)

	out := append(asm.Program{}, l.bootstrap()...)

	for _, name := range names {
		l.prefix = strings.TrimSuffix(name, filepath.Ext(name))

		for _, op := range l.program[name] {
			generated, err := l.HandleOperation(op)
			if err != nil {
				return nil, fmt.Errorf("%s: %s", name, err)
			}
			out = append(out, generated...)
		}
	}

	return out, nil
}

// Emits the fixed preamble every Hack program starts with: sets 'SP' to 256 (the first
// usable RAM cell above the reserved segment pointers) and transfers control to 'Sys.init'.
func (l *Lowerer) bootstrap() []asm.Instruction {
	l.currentFunc = "Bootstrap"

	instrs := []asm.Instruction{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
	call, _ := l.HandleFuncCallOp(FuncCallOp{Name: "Sys.init", NArgs: 0})
	return append(instrs, call...)
}

// Dispatches a single 'vm.Operation' to its dedicated handler based on its runtime type.
func (l *Lowerer) HandleOperation(op Operation) ([]asm.Instruction, error) {
	switch tOp := op.(type) {
	case MemoryOp:
		return l.HandleMemoryOp(tOp)
	case ArithmeticOp:
		return l.HandleArithmeticOp(tOp)
	case LabelDecl:
		return l.HandleLabelDecl(tOp)
	case GotoOp:
		return l.HandleGotoOp(tOp)
	case FuncDecl:
		return l.HandleFuncDecl(tOp)
	case FuncCallOp:
		return l.HandleFuncCallOp(tOp)
	case ReturnOp:
		return l.HandleReturnOp(tOp)
	default:
		return nil, fmt.Errorf("MalformedCommand: unrecognized operation '%T'", op)
	}
}

// ----------------------------------------------------------------------------
// Shared fragments

// Pushes the current value of 'D' onto the stack and advances 'SP'.
func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M+1"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
}

// Pops the stack's top into 'D', leaving 'SP' pointing at the new top.
func popToD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}
}

// Maps the 4 pointer-backed segments to the Hack register holding their base address.
var segmentBase = map[SegmentType]string{
	Local: "LCL", Argument: "ARG", This: "THIS", That: "THAT",
}

// ----------------------------------------------------------------------------
// Memory Op

// Specialized function to translate a 'vm.MemoryOp' operation to its Hack assembly template.
func (l *Lowerer) HandleMemoryOp(op MemoryOp) ([]asm.Instruction, error) {
	switch op.Segment {

	case Constant:
		if op.Operation == Pop {
			return nil, fmt.Errorf("BadIndex: cannot 'pop' into the 'constant' segment")
		}
		return append([]asm.Instruction{
			asm.AInstruction{Location: strconv.Itoa(int(op.Offset))},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, pushD()...), nil

	case Local, Argument, This, That:
		base := segmentBase[op.Segment]
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: strconv.Itoa(int(op.Offset))},
				asm.CInstruction{Dest: "D", Comp: "A"},
				asm.AInstruction{Location: base},
				asm.CInstruction{Dest: "A", Comp: "D+M"},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}

		// 'pop': the destination address depends on a runtime value (the segment base),
		// so we stash it in a scratch cell before popping the value itself out of the way.
		scratch := l.prefix + ".addr"
		instrs := []asm.Instruction{
			asm.AInstruction{Location: strconv.Itoa(int(op.Offset))},
			asm.CInstruction{Dest: "D", Comp: "A"},
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "D+M"},
			asm.AInstruction{Location: scratch},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}
		instrs = append(instrs, popToD()...)
		instrs = append(instrs,
			asm.AInstruction{Location: scratch},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		)
		return instrs, nil

	case Temp:
		if op.Offset > 7 {
			return nil, fmt.Errorf("BadIndex: 'temp' offset out of range, got %d", op.Offset)
		}
		addr := strconv.Itoa(5 + int(op.Offset))
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: addr},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		instrs := popToD()
		return append(instrs, asm.AInstruction{Location: addr}, asm.CInstruction{Dest: "M", Comp: "D"}), nil

	case Pointer:
		if op.Offset > 1 {
			return nil, fmt.Errorf("BadIndex: 'pointer' offset out of range, got %d", op.Offset)
		}
		target := "THIS"
		if op.Offset == 1 {
			target = "THAT"
		}
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: target},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		instrs := popToD()
		return append(instrs, asm.AInstruction{Location: target}, asm.CInstruction{Dest: "M", Comp: "D"}), nil

	case Static:
		symbol := fmt.Sprintf("%s.%d", l.prefix, op.Offset)
		if op.Operation == Push {
			return append([]asm.Instruction{
				asm.AInstruction{Location: symbol},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		instrs := popToD()
		return append(instrs, asm.AInstruction{Location: symbol}, asm.CInstruction{Dest: "M", Comp: "D"}), nil

	default:
		return nil, fmt.Errorf("UnknownSegment: '%s'", op.Segment)
	}
}

// ----------------------------------------------------------------------------
// Arithmetic Op

// Specialized function to translate a 'vm.ArithmeticOp' operation to its Hack assembly template.
func (l *Lowerer) HandleArithmeticOp(op ArithmeticOp) ([]asm.Instruction, error) {
	switch op.Operation {
	case Add:
		return binaryTemplate("D+M"), nil
	case Sub:
		return binaryTemplate("M-D"), nil
	case And:
		return binaryTemplate("D&M"), nil
	case Or:
		return binaryTemplate("D|M"), nil
	case Neg:
		return unaryTemplate("-M"), nil
	case Not:
		return unaryTemplate("!M"), nil
	case Eq:
		return l.comparisonTemplate("JEQ", "IsEq", "WriteEqOutput"), nil
	case Gt:
		return l.comparisonTemplate("JGT", "IsGt", "WriteGtOutput"), nil
	case Lt:
		return l.comparisonTemplate("JLT", "IsLt", "WriteLtOutput"), nil
	default:
		return nil, fmt.Errorf("MalformedCommand: unrecognized arithmetic op '%s'", op.Operation)
	}
}

// Pops two values, applies a binary 'comp' expression ('D' holds the first-popped operand,
// i.e. the stack's top, 'M' the second-popped one) and pushes the result back.
func binaryTemplate(comp string) []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "M", Comp: comp},
	}
}

// Rewrites the stack's top in place with a unary 'comp' expression.
func unaryTemplate(comp string) []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: comp},
	}
}

// Emits a comparison (eq/gt/lt): computes the difference of the two popped operands,
// conditionally jumps to 'trueLabel' on the given 'jump' mnemonic, writes false (0) or
// true (-1) accordingly and joins back at 'joinLabel'. Both labels are minted from the
// shared global counter so that every emission site gets a distinct pair (e.g. 'IsEq.1',
// 'IsEq.2', ...), as required to avoid collisions between repeated comparisons.
func (l *Lowerer) comparisonTemplate(jump, trueLabel, joinLabel string) []asm.Instruction {
	l.cmpCounter++
	trueL := fmt.Sprintf("%s.%d", trueLabel, l.cmpCounter)
	joinL := fmt.Sprintf("%s.%d", joinLabel, l.cmpCounter)

	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.AInstruction{Location: trueL},
		asm.CInstruction{Comp: "D", Jump: jump},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "0"},
		asm.AInstruction{Location: joinL},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: trueL},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "-1"},
		asm.LabelDecl{Name: joinL},
	}
}

// ----------------------------------------------------------------------------
// Branching Op

// Specialized function to translate a 'vm.LabelDecl' operation. Per vm.LabelDecl's own
// contract ("labels are local to the function they're declared in"), the label is qualified
// with the enclosing function's fully qualified name, not just the module/file prefix: two
// different functions in the same file are free to both declare e.g. 'IF_FALSE0'.
func (l *Lowerer) HandleLabelDecl(op LabelDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("MalformedCommand: empty label declaration")
	}
	return []asm.Instruction{asm.LabelDecl{Name: fmt.Sprintf("%s$%s", l.currentFunc, op.Name)}}, nil
}

// Specialized function to translate a 'vm.GotoOp' operation, either conditional or unconditional.
func (l *Lowerer) HandleGotoOp(op GotoOp) ([]asm.Instruction, error) {
	if op.Label == "" {
		return nil, fmt.Errorf("MalformedCommand: empty jump target")
	}
	target := fmt.Sprintf("%s$%s", l.currentFunc, op.Label)

	if op.Jump == Conditional {
		return append(popToD(), asm.AInstruction{Location: target}, asm.CInstruction{Comp: "D", Jump: "JNE"}), nil
	}
	return []asm.Instruction{asm.AInstruction{Location: target}, asm.CInstruction{Comp: "0", Jump: "JMP"}}, nil
}

// ----------------------------------------------------------------------------
// Function linkage Op

// Specialized function to translate a 'vm.FuncDecl' operation: declares the entrypoint label
// and zero-initializes 'NLocal' local slots. Also records the enclosing function so that later
// 'call' operations in its body can mint their return-address labels.
func (l *Lowerer) HandleFuncDecl(op FuncDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("MalformedCommand: empty function declaration")
	}
	l.currentFunc = op.Name

	instrs := []asm.Instruction{asm.LabelDecl{Name: op.Name}}
	if op.NLocal > 0 {
		instrs = append(instrs, asm.AInstruction{Location: "0"}, asm.CInstruction{Dest: "D", Comp: "A"})
		for i := uint8(0); i < op.NLocal; i++ {
			instrs = append(instrs, pushD()...)
		}
	}
	return instrs, nil
}

// Specialized function to translate a 'vm.FuncCallOp' operation: pushes the caller's frame
// (return address, LCL, ARG, THIS, THAT), repositions ARG/LCL for the callee and jumps to it.
func (l *Lowerer) HandleFuncCallOp(op FuncCallOp) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, fmt.Errorf("MalformedCommand: empty function call")
	}

	l.callCounters[l.currentFunc]++
	retLabel := fmt.Sprintf("%s$ret.%d", l.currentFunc, l.callCounters[l.currentFunc])

	instrs := []asm.Instruction{asm.AInstruction{Location: retLabel}, asm.CInstruction{Dest: "D", Comp: "A"}}
	instrs = append(instrs, pushD()...)
	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		instrs = append(instrs, asm.AInstruction{Location: reg}, asm.CInstruction{Dest: "D", Comp: "M"})
		instrs = append(instrs, pushD()...)
	}

	instrs = append(instrs,
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: strconv.Itoa(int(op.NArgs) + 5)}, asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: op.Name}, asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: retLabel},
	)
	return instrs, nil
}

// Specialized function to translate a 'vm.ReturnOp' operation: unwinds the callee's frame
// (using a per-module 'FRAME'/'RET' scratch pair) and transfers control back to the caller.
func (l *Lowerer) HandleReturnOp(ReturnOp) ([]asm.Instruction, error) {
	frame, ret := l.prefix+".FRAME", l.prefix+".RET"

	return []asm.Instruction{
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: frame}, asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "5"}, asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: ret}, asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: frame}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "THAT"}, asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: frame}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "THIS"}, asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: frame}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"}, asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: frame}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"}, asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: ret}, asm.CInstruction{Dest: "A", Comp: "M"}, asm.CInstruction{Comp: "0", Jump: "JMP"},
	}, nil
}
