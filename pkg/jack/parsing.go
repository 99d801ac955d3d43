package jack

import (
	"fmt"
	"io"
	"strconv"

	"its-hmny.dev/nand2tetris/pkg/token"
	"its-hmny.dev/nand2tetris/pkg/utils"
)

// ----------------------------------------------------------------------------
// Jack Parser
//
// A straightforward recursive-descent, one-token-lookahead parser over the flat
// token stream produced by 'pkg/token'. The goparsec combinator style used for the
// VM and Hack assembly grammars (pkg/vm, pkg/asm) builds a generic AST and walks it
// afterwards; here the two steps collapse into one, since every nonterminal below
// maps to exactly one parsing function and there is no generic tree to re-traverse.
// The two lookahead junctions the grammar actually needs (what follows an identifier;
// whether a leading '-'/'~' is unary or binary) are handled locally, right where the
// ambiguity occurs, rather than through a backtracking or generic-AST layer.

type Parser struct{ reader io.Reader }

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parse tokenizes the full content of the reader and parses it as a single Jack class.
func (p *Parser) Parse() (Class, error) {
	tokens, err := token.Tokenize(p.reader)
	if err != nil {
		return Class{}, fmt.Errorf("error tokenizing input: %w", err)
	}

	cur := &cursor{tokens: tokens}
	class, err := cur.parseClass()
	if err != nil {
		return Class{}, err
	}

	if t, ok := cur.peek(); ok {
		return Class{}, fmt.Errorf("UnexpectedToken: unexpected content after class body, got %s", cur.describe(t, ok))
	}

	return class, nil
}

// cursor walks the token slice produced by the tokenizer, one token at a time.
type cursor struct {
	tokens []token.Token
	pos    int
}

func (c *cursor) peek() (token.Token, bool) {
	if c.pos >= len(c.tokens) {
		return token.Token{}, false
	}
	return c.tokens[c.pos], true
}

func (c *cursor) advance() (token.Token, bool) {
	t, ok := c.peek()
	if ok {
		c.pos++
	}
	return t, ok
}

func (c *cursor) peekIsSymbol(sym string) bool {
	t, ok := c.peek()
	return ok && t.Kind == token.Symbol && t.Text == sym
}

func (c *cursor) peekIsKeyword(kw string) bool {
	t, ok := c.peek()
	return ok && t.Kind == token.Keyword && t.Text == kw
}

func (c *cursor) expectSymbol(sym string) (token.Token, error) {
	t, ok := c.peek()
	if !ok || t.Kind != token.Symbol || t.Text != sym {
		return token.Token{}, fmt.Errorf("UnexpectedSymbol: expected '%s', got %s", sym, c.describe(t, ok))
	}
	c.advance()
	return t, nil
}

func (c *cursor) expectKeyword(kw string) (token.Token, error) {
	t, ok := c.peek()
	if !ok || t.Kind != token.Keyword || t.Text != kw {
		return token.Token{}, fmt.Errorf("UnexpectedKeyword: expected '%s', got %s", kw, c.describe(t, ok))
	}
	c.advance()
	return t, nil
}

func (c *cursor) expectIdentifier() (token.Token, error) {
	t, ok := c.peek()
	if !ok || t.Kind != token.Identifier {
		return token.Token{}, fmt.Errorf("UnexpectedToken: expected an identifier, got %s", c.describe(t, ok))
	}
	c.advance()
	return t, nil
}

func (c *cursor) describe(t token.Token, ok bool) string {
	if !ok {
		return "end of input"
	}
	return fmt.Sprintf("%s at line %d, col %d", t, t.Line, t.Col)
}

// ----------------------------------------------------------------------------
// Class, variables, subroutines

func (c *cursor) parseClass() (Class, error) {
	if _, err := c.expectKeyword("class"); err != nil {
		return Class{}, err
	}
	nameTok, err := c.expectIdentifier()
	if err != nil {
		return Class{}, err
	}
	if _, err := c.expectSymbol("{"); err != nil {
		return Class{}, err
	}

	class := Class{Name: nameTok.Text, Fields: utils.OrderedMap[string, Variable]{}, Subroutines: utils.OrderedMap[string, Subroutine]{}}

	for {
		if c.peekIsSymbol("}") {
			break
		}

		if c.peekIsKeyword("static") || c.peekIsKeyword("field") {
			vars, err := c.parseClassVarDec()
			if err != nil {
				return Class{}, err
			}
			for _, v := range vars {
				if _, exists := class.Fields.Get(v.Name); exists {
					return Class{}, fmt.Errorf("DuplicateName: duplicate declaration of '%s' in class '%s'", v.Name, class.Name)
				}
				class.Fields.Set(v.Name, v)
			}
			continue
		}

		if c.peekIsKeyword("constructor") || c.peekIsKeyword("function") || c.peekIsKeyword("method") {
			sub, err := c.parseSubroutineDec()
			if err != nil {
				return Class{}, err
			}
			if _, exists := class.Subroutines.Get(sub.Name); exists {
				return Class{}, fmt.Errorf("DuplicateName: duplicate declaration of subroutine '%s' in class '%s'", sub.Name, class.Name)
			}
			class.Subroutines.Set(sub.Name, sub)
			continue
		}

		t, ok := c.peek()
		return Class{}, fmt.Errorf("UnexpectedToken: expected a field, static or subroutine declaration, got %s", c.describe(t, ok))
	}

	if _, err := c.expectSymbol("}"); err != nil {
		return Class{}, err
	}

	return class, nil
}

func (c *cursor) parseType() (DataType, error) {
	t, ok := c.advance()
	if !ok {
		return DataType{}, fmt.Errorf("UnexpectedToken: expected a type, got end of input")
	}

	switch {
	case t.Kind == token.Keyword && t.Text == "int":
		return DataType{Main: Int}, nil
	case t.Kind == token.Keyword && t.Text == "char":
		return DataType{Main: Char}, nil
	case t.Kind == token.Keyword && t.Text == "boolean":
		return DataType{Main: Bool}, nil
	case t.Kind == token.Keyword && t.Text == "void":
		return DataType{Main: Void}, nil
	case t.Kind == token.Identifier:
		return DataType{Main: Object, Subtype: t.Text}, nil
	default:
		return DataType{}, fmt.Errorf("UnexpectedToken: expected a type, got %s at line %d, col %d", t, t.Line, t.Col)
	}
}

func (c *cursor) parseClassVarDec() ([]Variable, error) {
	kindTok, _ := c.advance() // already confirmed 'static' or 'field' by the caller
	varType := Field
	if kindTok.Text == "static" {
		varType = Static
	}

	dataType, err := c.parseType()
	if err != nil {
		return nil, err
	}

	var vars []Variable
	for {
		nameTok, err := c.expectIdentifier()
		if err != nil {
			return nil, err
		}
		vars = append(vars, Variable{Name: nameTok.Text, VarType: varType, DataType: dataType})

		if c.peekIsSymbol(",") {
			c.advance()
			continue
		}
		break
	}

	if _, err := c.expectSymbol(";"); err != nil {
		return nil, err
	}
	return vars, nil
}

func (c *cursor) parseSubroutineDec() (Subroutine, error) {
	kindTok, _ := c.advance() // already confirmed 'constructor'/'function'/'method' by the caller

	var subType SubroutineType
	switch kindTok.Text {
	case "constructor":
		subType = Constructor
	case "function":
		subType = Function
	case "method":
		subType = Method
	}

	returnType, err := c.parseType()
	if err != nil {
		return Subroutine{}, err
	}

	nameTok, err := c.expectIdentifier()
	if err != nil {
		return Subroutine{}, err
	}

	args, err := c.parseParamList()
	if err != nil {
		return Subroutine{}, err
	}

	if _, err := c.expectSymbol("{"); err != nil {
		return Subroutine{}, err
	}

	statements, err := c.parseSubroutineBody()
	if err != nil {
		return Subroutine{}, err
	}

	if _, err := c.expectSymbol("}"); err != nil {
		return Subroutine{}, err
	}

	return Subroutine{Name: nameTok.Text, Type: subType, Return: returnType, Arguments: args, Statements: statements}, nil
}

func (c *cursor) parseParamList() (utils.OrderedMap[string, Variable], error) {
	if _, err := c.expectSymbol("("); err != nil {
		return utils.OrderedMap[string, Variable]{}, err
	}

	args := utils.OrderedMap[string, Variable]{}
	for !c.peekIsSymbol(")") {
		argType, err := c.parseType()
		if err != nil {
			return utils.OrderedMap[string, Variable]{}, err
		}
		argNameTok, err := c.expectIdentifier()
		if err != nil {
			return utils.OrderedMap[string, Variable]{}, err
		}

		if _, exists := args.Get(argNameTok.Text); exists {
			return utils.OrderedMap[string, Variable]{}, fmt.Errorf("DuplicateName: duplicate declaration of parameter '%s'", argNameTok.Text)
		}
		args.Set(argNameTok.Text, Variable{Name: argNameTok.Text, VarType: Parameter, DataType: argType})

		if c.peekIsSymbol(",") {
			c.advance()
			continue
		}
		break
	}

	if _, err := c.expectSymbol(")"); err != nil {
		return utils.OrderedMap[string, Variable]{}, err
	}
	return args, nil
}

// A subroutine body is every local 'var' declaration (in order) followed by the
// statement list; both are flattened into a single ordered []Statement, with each
// 'var' declaration surfacing as its own 'VarStmt' (the Lowerer registers it into
// scope the moment it is reached, same as any other statement).
func (c *cursor) parseSubroutineBody() ([]Statement, error) {
	var statements []Statement
	seenLocal := map[string]bool{}

	for c.peekIsKeyword("var") {
		vars, err := c.parseVarDec()
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			if seenLocal[v.Name] {
				return nil, fmt.Errorf("DuplicateName: duplicate declaration of local variable '%s'", v.Name)
			}
			seenLocal[v.Name] = true
		}
		statements = append(statements, VarStmt{Vars: vars})
	}

	for !c.peekIsSymbol("}") {
		stmt, err := c.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}

	return statements, nil
}

func (c *cursor) parseVarDec() ([]Variable, error) {
	if _, err := c.expectKeyword("var"); err != nil {
		return nil, err
	}
	dataType, err := c.parseType()
	if err != nil {
		return nil, err
	}

	var vars []Variable
	for {
		nameTok, err := c.expectIdentifier()
		if err != nil {
			return nil, err
		}
		vars = append(vars, Variable{Name: nameTok.Text, VarType: Local, DataType: dataType})

		if c.peekIsSymbol(",") {
			c.advance()
			continue
		}
		break
	}

	if _, err := c.expectSymbol(";"); err != nil {
		return nil, err
	}
	return vars, nil
}

// ----------------------------------------------------------------------------
// Statements

func (c *cursor) parseStatements() ([]Statement, error) {
	var statements []Statement
	for !c.peekIsSymbol("}") {
		stmt, err := c.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, nil
}

func (c *cursor) parseStatement() (Statement, error) {
	t, ok := c.peek()
	if !ok {
		return nil, fmt.Errorf("UnexpectedToken: expected a statement, got end of input")
	}

	if t.Kind == token.Keyword {
		switch t.Text {
		case "let":
			return c.parseLetStatement()
		case "if":
			return c.parseIfStatement()
		case "while":
			return c.parseWhileStatement()
		case "do":
			return c.parseDoStatement()
		case "return":
			return c.parseReturnStatement()
		}
	}

	return nil, fmt.Errorf("UnexpectedToken: expected a statement, got %s", c.describe(t, ok))
}

func (c *cursor) parseLetStatement() (Statement, error) {
	if _, err := c.expectKeyword("let"); err != nil {
		return nil, err
	}
	nameTok, err := c.expectIdentifier()
	if err != nil {
		return nil, err
	}

	var lhs Expression = VarExpr{Var: nameTok.Text}
	if c.peekIsSymbol("[") {
		c.advance()
		idx, err := c.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := c.expectSymbol("]"); err != nil {
			return nil, err
		}
		lhs = ArrayExpr{Var: nameTok.Text, Index: idx}
	}

	if _, err := c.expectSymbol("="); err != nil {
		return nil, err
	}
	rhs, err := c.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol(";"); err != nil {
		return nil, err
	}

	return LetStmt{Lhs: lhs, Rhs: rhs}, nil
}

func (c *cursor) parseIfStatement() (Statement, error) {
	if _, err := c.expectKeyword("if"); err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := c.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol(")"); err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol("{"); err != nil {
		return nil, err
	}
	thenBlock, err := c.parseStatements()
	if err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol("}"); err != nil {
		return nil, err
	}

	var elseBlock []Statement
	if c.peekIsKeyword("else") {
		c.advance()
		if _, err := c.expectSymbol("{"); err != nil {
			return nil, err
		}
		elseBlock, err = c.parseStatements()
		if err != nil {
			return nil, err
		}
		if _, err := c.expectSymbol("}"); err != nil {
			return nil, err
		}
	}

	return IfStmt{Condition: cond, ThenBlock: thenBlock, ElseBlock: elseBlock}, nil
}

func (c *cursor) parseWhileStatement() (Statement, error) {
	if _, err := c.expectKeyword("while"); err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := c.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol(")"); err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol("{"); err != nil {
		return nil, err
	}
	block, err := c.parseStatements()
	if err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol("}"); err != nil {
		return nil, err
	}

	return WhileStmt{Condition: cond, Block: block}, nil
}

func (c *cursor) parseDoStatement() (Statement, error) {
	if _, err := c.expectKeyword("do"); err != nil {
		return nil, err
	}
	call, err := c.parseSubroutineCall()
	if err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol(";"); err != nil {
		return nil, err
	}
	return DoStmt{FuncCall: call}, nil
}

func (c *cursor) parseReturnStatement() (Statement, error) {
	if _, err := c.expectKeyword("return"); err != nil {
		return nil, err
	}

	if c.peekIsSymbol(";") {
		c.advance()
		return ReturnStmt{}, nil
	}

	expr, err := c.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := c.expectSymbol(";"); err != nil {
		return nil, err
	}

	return ReturnStmt{Expr: expr}, nil
}

// ----------------------------------------------------------------------------
// Expressions

// An expression is a flat sequence of terms folded left-associatively as each binary
// operator is consumed; since the Lowerer visits a 'BinaryExpr' Lhs-then-Rhs-then-op,
// this fold reproduces exactly the strict left-to-right emission order §4.4 requires,
// with no operator precedence applied.
func (c *cursor) parseExpression() (Expression, error) {
	left, err := c.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		op, ok := c.peekBinaryOp()
		if !ok {
			break
		}
		c.advance()

		right, err := c.parseTerm()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Type: op, Lhs: left, Rhs: right}
	}

	return left, nil
}

func (c *cursor) peekBinaryOp() (ExprType, bool) {
	t, ok := c.peek()
	if !ok || t.Kind != token.Symbol {
		return "", false
	}

	switch t.Text {
	case "+":
		return Plus, true
	case "-":
		return Minus, true
	case "*":
		return Multiply, true
	case "/":
		return Divide, true
	case "&":
		return BoolAnd, true
	case "|":
		return BoolOr, true
	case "<":
		return LessThan, true
	case ">":
		return GreatThan, true
	case "=":
		return Equal, true
	default:
		return "", false
	}
}

// parseTerm is always called at the start of a term, whether that is the very first
// term of an expression or the term right after a just-consumed binary operator; a
// leading '-' or '~' found here is therefore always the unary form (§4.2's "no term has
// yet been accumulated" case), never the binary one.
func (c *cursor) parseTerm() (Expression, error) {
	t, ok := c.peek()
	if !ok {
		return nil, fmt.Errorf("UnexpectedToken: expected a term, got end of input")
	}

	switch {
	case t.Kind == token.IntegerConstant:
		c.advance()
		return LiteralExpr{Type: DataType{Main: Int}, Value: strconv.FormatUint(uint64(t.Value), 10)}, nil

	case t.Kind == token.StringConstant:
		c.advance()
		return LiteralExpr{Type: DataType{Main: String}, Value: t.Text}, nil

	case t.Kind == token.Keyword && t.Text == "true":
		c.advance()
		return LiteralExpr{Type: DataType{Main: Bool}, Value: "true"}, nil

	case t.Kind == token.Keyword && t.Text == "false":
		c.advance()
		return LiteralExpr{Type: DataType{Main: Bool}, Value: "false"}, nil

	case t.Kind == token.Keyword && t.Text == "null":
		c.advance()
		return LiteralExpr{Type: DataType{Main: Object}, Value: "null"}, nil

	case t.Kind == token.Keyword && t.Text == "this":
		c.advance()
		return VarExpr{Var: "this"}, nil

	case t.Kind == token.Symbol && t.Text == "(":
		c.advance()
		expr, err := c.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := c.expectSymbol(")"); err != nil {
			return nil, err
		}
		return expr, nil

	case t.Kind == token.Symbol && t.Text == "-":
		c.advance()
		rhs, err := c.parseTerm()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Type: Negation, Rhs: rhs}, nil

	case t.Kind == token.Symbol && t.Text == "~":
		c.advance()
		rhs, err := c.parseTerm()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Type: BoolNot, Rhs: rhs}, nil

	case t.Kind == token.Identifier:
		return c.parseIdentifierTerm()

	default:
		return nil, fmt.Errorf("UnexpectedToken: expected a term, got %s at line %d, col %d", t, t.Line, t.Col)
	}
}

// parseIdentifierTerm resolves the §4.2 lookahead junction: the symbol right after an
// identifier ('[', '(', '.', or anything else) decides whether it's an array index, a
// bare call, a qualified call, or a plain variable reference.
func (c *cursor) parseIdentifierTerm() (Expression, error) {
	nameTok, err := c.expectIdentifier()
	if err != nil {
		return nil, err
	}

	if c.peekIsSymbol("[") {
		c.advance()
		idx, err := c.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := c.expectSymbol("]"); err != nil {
			return nil, err
		}
		return ArrayExpr{Var: nameTok.Text, Index: idx}, nil
	}

	if c.peekIsSymbol("(") {
		args, err := c.parseArgList()
		if err != nil {
			return nil, err
		}
		return FuncCallExpr{IsExtCall: false, FuncName: nameTok.Text, Arguments: args}, nil
	}

	if c.peekIsSymbol(".") {
		c.advance()
		subNameTok, err := c.expectIdentifier()
		if err != nil {
			return nil, err
		}
		args, err := c.parseArgList()
		if err != nil {
			return nil, err
		}
		return FuncCallExpr{IsExtCall: true, Var: nameTok.Text, FuncName: subNameTok.Text, Arguments: args}, nil
	}

	return VarExpr{Var: nameTok.Text}, nil
}

// parseSubroutineCall parses the restricted subset of 'parseIdentifierTerm' valid after
// a 'do' keyword: a bare or qualified call, never a plain variable or array index.
func (c *cursor) parseSubroutineCall() (FuncCallExpr, error) {
	nameTok, err := c.expectIdentifier()
	if err != nil {
		return FuncCallExpr{}, err
	}

	if c.peekIsSymbol(".") {
		c.advance()
		subNameTok, err := c.expectIdentifier()
		if err != nil {
			return FuncCallExpr{}, err
		}
		args, err := c.parseArgList()
		if err != nil {
			return FuncCallExpr{}, err
		}
		return FuncCallExpr{IsExtCall: true, Var: nameTok.Text, FuncName: subNameTok.Text, Arguments: args}, nil
	}

	args, err := c.parseArgList()
	if err != nil {
		return FuncCallExpr{}, err
	}
	return FuncCallExpr{IsExtCall: false, FuncName: nameTok.Text, Arguments: args}, nil
}

func (c *cursor) parseArgList() ([]Expression, error) {
	if _, err := c.expectSymbol("("); err != nil {
		return nil, err
	}

	var args []Expression
	for !c.peekIsSymbol(")") {
		expr, err := c.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, expr)

		if c.peekIsSymbol(",") {
			c.advance()
			continue
		}
		break
	}

	if _, err := c.expectSymbol(")"); err != nil {
		return nil, err
	}
	return args, nil
}
