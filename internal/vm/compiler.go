package vm

import (
	"fmt"
	"strconv"

	"github.com/loxvm/glox/internal/lexer"
	"github.com/loxvm/glox/internal/token"
)

// Diagnostic is one compile-time error. Any diagnostic fails the whole
// compilation; the VM never runs partially compiled code.
type Diagnostic struct {
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[line %d] %s", d.Line, d.Message)
}

// FunctionType distinguishes the kinds of function bodies being compiled
type FunctionType int

const (
	TYPE_SCRIPT FunctionType = iota
	TYPE_FUNCTION
	TYPE_METHOD
	TYPE_INITIALIZER
)

// parser holds the token window and error state shared by the whole
// compiler chain of one compilation.
type parser struct {
	lexer    *lexer.Lexer
	current  token.Token
	previous token.Token

	diagnostics []Diagnostic
	panicMode   bool

	// compiler is the innermost function compiler; its enclosing chain is
	// the GC root set during compilation.
	compiler *Compiler

	// currentClass tracks the innermost class body for this/super checks.
	currentClass *classCompiler
}

// classCompiler tracks the class declaration being compiled.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler compiles one function body. Nested function declarations get
// their own Compiler linked through enclosing.
type Compiler struct {
	parser    *parser
	heap      *Heap
	enclosing *Compiler

	function *ObjFunction
	funcType FunctionType

	locals     [maxLocals]Local
	localCount int
	upvalues   [maxUpvalues]Upvalue
	scopeDepth int
}

// MarkRoots marks every function still being compiled, plus everything
// already in their constant pools, so a collection triggered by a
// compile-time allocation cannot reclaim them.
func (p *parser) MarkRoots(h *Heap) {
	for c := p.compiler; c != nil; c = c.enclosing {
		h.MarkObject(c.function)
	}
}

// Compile compiles source into a top-level function. On any error it
// returns nil and the collected diagnostics.
func Compile(source string, heap *Heap) (*ObjFunction, []Diagnostic) {
	p := &parser{lexer: lexer.New(source)}
	heap.AddRoot(p)
	defer heap.RemoveRoot(p)

	c := newCompiler(p, heap, nil, TYPE_SCRIPT)

	p.advance()
	for !p.match(token.EOF) {
		c.declaration()
	}

	fn := c.endCompiler()
	if len(p.diagnostics) > 0 {
		return nil, p.diagnostics
	}
	return fn, nil
}

func newCompiler(p *parser, heap *Heap, enclosing *Compiler, funcType FunctionType) *Compiler {
	c := &Compiler{
		parser:    p,
		heap:      heap,
		enclosing: enclosing,
		funcType:  funcType,
	}

	// Root the function before allocating its name: the name allocation may
	// trigger a collection, and only the compiler chain keeps compile-time
	// objects alive.
	c.function = heap.NewFunction(nil)
	p.compiler = c
	if funcType != TYPE_SCRIPT {
		c.function.Name = heap.NewString(p.previous.Lexeme)
	}

	// Slot zero holds the callee: the receiver inside methods, otherwise
	// inaccessible.
	slotZero := ""
	if funcType == TYPE_METHOD || funcType == TYPE_INITIALIZER {
		slotZero = "this"
	}
	c.locals[0] = Local{Name: slotZero, Depth: 0}
	c.localCount = 1

	return c
}

// endCompiler finishes the current function and pops back to the enclosing
// compiler.
func (c *Compiler) endCompiler() *ObjFunction {
	c.emitReturn()
	c.parser.compiler = c.enclosing
	return c.function
}

// Token plumbing

// advance consumes the next token, reporting and skipping any error tokens
// the lexer produced.
func (p *parser) advance() {
	p.previous = p.current

	for {
		p.current = p.lexer.NextToken()
		if p.current.Type != token.ERROR {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *parser) consume(t token.Type, message string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

func (p *parser) check(t token.Type) bool {
	return p.current.Type == t
}

func (p *parser) match(t token.Type) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

// Error reporting with panic-mode suppression: after the first error in a
// run, further errors are swallowed until synchronize resets at a
// statement boundary.

func (p *parser) errorAt(tok token.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	var where string
	switch tok.Type {
	case token.EOF:
		where = " at end"
	case token.ERROR:
		// lexer errors carry no lexeme to point at
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}

	p.diagnostics = append(p.diagnostics, Diagnostic{
		Line:    tok.Line,
		Message: fmt.Sprintf("Error%s: %s", where, message),
	})
}

func (p *parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

// synchronize skips tokens until a likely statement boundary.
func (p *parser) synchronize() {
	p.panicMode = false

	for p.current.Type != token.EOF {
		if p.previous.Type == token.SEMICOLON {
			return
		}
		switch p.current.Type {
		case token.CLASS, token.FUN, token.VAR, token.FOR,
			token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		p.advance()
	}
}

// Pratt expression parsing

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	precedence
}

var rules [token.TypeCount]parseRule

func init() {
	rules[token.LEFT_PAREN] = parseRule{grouping, call, precCall}
	rules[token.DOT] = parseRule{nil, dot, precCall}
	rules[token.MINUS] = parseRule{unary, binary, precTerm}
	rules[token.PLUS] = parseRule{nil, binary, precTerm}
	rules[token.SLASH] = parseRule{nil, binary, precFactor}
	rules[token.STAR] = parseRule{nil, binary, precFactor}
	rules[token.BANG] = parseRule{unary, nil, precNone}
	rules[token.BANG_EQUAL] = parseRule{nil, binary, precEquality}
	rules[token.EQUAL_EQUAL] = parseRule{nil, binary, precEquality}
	rules[token.GREATER] = parseRule{nil, binary, precComparison}
	rules[token.GREATER_EQUAL] = parseRule{nil, binary, precComparison}
	rules[token.LESS] = parseRule{nil, binary, precComparison}
	rules[token.LESS_EQUAL] = parseRule{nil, binary, precComparison}
	rules[token.IDENTIFIER] = parseRule{variable, nil, precNone}
	rules[token.STRING] = parseRule{stringLiteral, nil, precNone}
	rules[token.NUMBER] = parseRule{number, nil, precNone}
	rules[token.AND] = parseRule{nil, and, precAnd}
	rules[token.OR] = parseRule{nil, or, precOr}
	rules[token.FALSE] = parseRule{literal, nil, precNone}
	rules[token.TRUE] = parseRule{literal, nil, precNone}
	rules[token.NIL] = parseRule{literal, nil, precNone}
	rules[token.THIS] = parseRule{this, nil, precNone}
	rules[token.SUPER] = parseRule{super, nil, precNone}
}

// parsePrecedence parses anything at the given precedence or tighter.
// canAssign threads down so `a.b = c` parses but `a + b = c` reports an
// invalid assignment target.
func (c *Compiler) parsePrecedence(prec precedence) {
	c.parser.advance()
	prefix := rules[c.parser.previous.Type].prefix
	if prefix == nil {
		c.parser.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= rules[c.parser.current.Type].precedence {
		c.parser.advance()
		rules[c.parser.previous.Type].infix(c, canAssign)
	}

	if canAssign && c.parser.match(token.EQUAL) {
		c.parser.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func number(c *Compiler, _ bool) {
	f, err := strconv.ParseFloat(c.parser.previous.Lexeme, 64)
	if err != nil {
		c.parser.error("Invalid number literal.")
		return
	}
	c.emitConstant(NumberVal(f))
}

func stringLiteral(c *Compiler, _ bool) {
	c.emitConstant(ObjVal(c.heap.NewString(c.parser.previous.Lexeme)))
}

func literal(c *Compiler, _ bool) {
	switch c.parser.previous.Type {
	case token.FALSE:
		c.emit(OP_FALSE)
	case token.TRUE:
		c.emit(OP_TRUE)
	case token.NIL:
		c.emit(OP_NIL)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.parser.consume(token.RIGHT_PAREN, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	op := c.parser.previous.Type
	c.parsePrecedence(precUnary)

	switch op {
	case token.MINUS:
		c.emit(OP_NEG)
	case token.BANG:
		c.emit(OP_NOT)
	}
}

func binary(c *Compiler, _ bool) {
	op := c.parser.previous.Type
	c.parsePrecedence(rules[op].precedence + 1)

	switch op {
	case token.PLUS:
		c.emit(OP_ADD)
	case token.MINUS:
		c.emit(OP_SUB)
	case token.STAR:
		c.emit(OP_MUL)
	case token.SLASH:
		c.emit(OP_DIV)
	case token.EQUAL_EQUAL:
		c.emit(OP_EQUAL)
	case token.BANG_EQUAL:
		c.emit(OP_EQUAL)
		c.emit(OP_NOT)
	case token.GREATER:
		c.emit(OP_GREATER)
	case token.GREATER_EQUAL:
		c.emit(OP_LESS)
		c.emit(OP_NOT)
	case token.LESS:
		c.emit(OP_LESS)
	case token.LESS_EQUAL:
		c.emit(OP_GREATER)
		c.emit(OP_NOT)
	}
}

// and compiles short-circuit conjunction as a conditional jump, not a
// function call.
func and(c *Compiler, _ bool) {
	endJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emit(OP_POP)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or(c *Compiler, _ bool) {
	elseJump := c.emitJump(OP_JUMP_IF_FALSE)
	endJump := c.emitJump(OP_JUMP)

	c.patchJump(elseJump)
	c.emit(OP_POP)

	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.parser.previous.Lexeme, canAssign)
}

// namedVariable resolves an identifier against locals, then enclosing
// upvalues, then falls back to a late-bound global by name.
func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp Opcode
	var arg int
	var byteOperand bool

	if slot := c.resolveLocal(name); slot != -1 {
		getOp, setOp = OP_GET_LOCAL, OP_SET_LOCAL
		arg = slot
		byteOperand = true
	} else if upvalue := c.resolveUpvalue(name); upvalue != -1 {
		getOp, setOp = OP_GET_UPVALUE, OP_SET_UPVALUE
		arg = upvalue
		byteOperand = true
	} else {
		getOp, setOp = OP_GET_GLOBAL, OP_SET_GLOBAL
		arg = c.identifierConstant(name)
	}

	op := getOp
	if canAssign && c.parser.match(token.EQUAL) {
		c.expression()
		op = setOp
	}

	if byteOperand {
		c.emitOpByte(op, byte(arg))
	} else {
		c.emitOpConstant(op, arg)
	}
}

func this(c *Compiler, _ bool) {
	if c.parser.currentClass == nil {
		c.parser.error("Can't use 'this' outside of a class.")
		return
	}
	variable(c, false)
}

// super compiles super.method, either binding it or invoking it directly.
// The receiver and the superclass are both loaded so the VM can skip to the
// immediate superclass's method table.
func super(c *Compiler, _ bool) {
	if c.parser.currentClass == nil {
		c.parser.error("Can't use 'super' outside of a class.")
	} else if !c.parser.currentClass.hasSuperclass {
		c.parser.error("Can't use 'super' in a class with no superclass.")
	}

	c.parser.consume(token.DOT, "Expect '.' after 'super'.")
	c.parser.consume(token.IDENTIFIER, "Expect superclass method name.")
	name := c.identifierConstant(c.parser.previous.Lexeme)

	c.namedVariable("this", false)
	if c.parser.match(token.LEFT_PAREN) {
		argCount := c.argumentList()
		c.namedVariable("super", false)
		c.emitOpConstant(OP_SUPER_INVOKE, name)
		c.emitByte(argCount)
	} else {
		c.namedVariable("super", false)
		c.emitOpConstant(OP_GET_SUPER, name)
	}
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpByte(OP_CALL, argCount)
}

func dot(c *Compiler, canAssign bool) {
	c.parser.consume(token.IDENTIFIER, "Expect property name after '.'.")
	name := c.identifierConstant(c.parser.previous.Lexeme)

	if canAssign && c.parser.match(token.EQUAL) {
		c.expression()
		c.emitOpConstant(OP_SET_PROPERTY, name)
	} else if c.parser.match(token.LEFT_PAREN) {
		argCount := c.argumentList()
		c.emitOpConstant(OP_INVOKE, name)
		c.emitByte(argCount)
	} else {
		c.emitOpConstant(OP_GET_PROPERTY, name)
	}
}

func (c *Compiler) argumentList() byte {
	argCount := 0
	if !c.parser.check(token.RIGHT_PAREN) {
		for {
			c.expression()
			if argCount == maxArgs {
				c.parser.error("Can't have more than 255 arguments.")
			} else {
				argCount++
			}
			if !c.parser.match(token.COMMA) {
				break
			}
		}
	}
	c.parser.consume(token.RIGHT_PAREN, "Expect ')' after arguments.")
	return byte(argCount)
}

// Declarations and statements

func (c *Compiler) declaration() {
	switch {
	case c.parser.match(token.CLASS):
		c.classDeclaration()
	case c.parser.match(token.FUN):
		c.funDeclaration()
	case c.parser.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.parser.panicMode {
		c.parser.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.parser.match(token.PRINT):
		c.printStatement()
	case c.parser.match(token.FOR):
		c.forStatement()
	case c.parser.match(token.IF):
		c.ifStatement()
	case c.parser.match(token.RETURN):
		c.returnStatement()
	case c.parser.match(token.WHILE):
		c.whileStatement()
	case c.parser.match(token.LEFT_BRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) identifierConstant(name string) int {
	return c.makeConstant(ObjVal(c.heap.NewString(name)))
}

func (c *Compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}

	name := c.parser.previous.Lexeme
	for i := c.localCount - 1; i >= 0; i-- {
		local := &c.locals[i]
		if local.Depth != -1 && local.Depth < c.scopeDepth {
			break
		}
		if local.Name == name {
			c.parser.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

// parseVariable consumes an identifier and returns its constant-pool index
// for globals, or 0 for locals (which are addressed by slot, not name).
func (c *Compiler) parseVariable(message string) int {
	c.parser.consume(token.IDENTIFIER, message)

	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.parser.previous.Lexeme)
}

func (c *Compiler) defineVariable(global int) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpConstant(OP_DEFINE_GLOBAL, global)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.parser.match(token.EQUAL) {
		c.expression()
	} else {
		c.emit(OP_NIL)
	}
	c.parser.consume(token.SEMICOLON, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.compileFunction(TYPE_FUNCTION)
	c.defineVariable(global)
}

// compileFunction compiles a function body in a fresh Compiler and emits
// the closure-creation instruction with its capture descriptors.
func (c *Compiler) compileFunction(funcType FunctionType) {
	fc := newCompiler(c.parser, c.heap, c, funcType)
	fc.beginScope()

	fc.parser.consume(token.LEFT_PAREN, "Expect '(' after function name.")
	if !fc.parser.check(token.RIGHT_PAREN) {
		for {
			fc.function.Arity++
			if fc.function.Arity > maxArgs {
				fc.parser.errorAtCurrent("Can't have more than 255 parameters.")
			}
			param := fc.parseVariable("Expect parameter name.")
			fc.defineVariable(param)
			if !fc.parser.match(token.COMMA) {
				break
			}
		}
	}
	fc.parser.consume(token.RIGHT_PAREN, "Expect ')' after parameters.")
	fc.parser.consume(token.LEFT_BRACE, "Expect '{' before function body.")
	fc.block()

	fn := fc.endCompiler()

	c.emitOpConstant(OP_CLOSURE, c.makeConstant(ObjVal(fn)))
	for i := 0; i < fn.UpvalueCount; i++ {
		if fc.upvalues[i].IsLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(fc.upvalues[i].Index)
	}
}

func (c *Compiler) classDeclaration() {
	c.parser.consume(token.IDENTIFIER, "Expect class name.")
	className := c.parser.previous.Lexeme
	nameConstant := c.identifierConstant(className)
	c.declareVariable()

	c.emitOpConstant(OP_CLASS, nameConstant)
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.parser.currentClass}
	c.parser.currentClass = cc

	if c.parser.match(token.LESS) {
		c.parser.consume(token.IDENTIFIER, "Expect superclass name.")
		variable(c, false)

		if className == c.parser.previous.Lexeme {
			c.parser.error("A class can't inherit from itself.")
		}

		// "super" lives in a scope of its own so each class body gets a
		// fresh binding for its methods to capture.
		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emit(OP_INHERIT)
		cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.parser.consume(token.LEFT_BRACE, "Expect '{' before class body.")
	for !c.parser.check(token.RIGHT_BRACE) && !c.parser.check(token.EOF) {
		c.method()
	}
	c.parser.consume(token.RIGHT_BRACE, "Expect '}' after class body.")
	c.emit(OP_POP)

	if cc.hasSuperclass {
		c.endScope()
	}

	c.parser.currentClass = cc.enclosing
}

func (c *Compiler) method() {
	c.parser.consume(token.IDENTIFIER, "Expect method name.")
	name := c.identifierConstant(c.parser.previous.Lexeme)

	funcType := TYPE_METHOD
	if c.parser.previous.Lexeme == "init" {
		funcType = TYPE_INITIALIZER
	}
	c.compileFunction(funcType)

	c.emitOpConstant(OP_METHOD, name)
}

func (c *Compiler) block() {
	for !c.parser.check(token.RIGHT_BRACE) && !c.parser.check(token.EOF) {
		c.declaration()
	}
	c.parser.consume(token.RIGHT_BRACE, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.parser.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emit(OP_PRINT)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.parser.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emit(OP_POP)
}

func (c *Compiler) ifStatement() {
	c.parser.consume(token.LEFT_PAREN, "Expect '(' after 'if'.")
	c.expression()
	c.parser.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emit(OP_POP)
	c.statement()

	elseJump := c.emitJump(OP_JUMP)

	c.patchJump(thenJump)
	c.emit(OP_POP)

	if c.parser.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentChunk().Len()

	c.parser.consume(token.LEFT_PAREN, "Expect '(' after 'while'.")
	c.expression()
	c.parser.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emit(OP_POP)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emit(OP_POP)
}

// forStatement desugars to initializer + while-with-increment. The loop
// variable is a single binding shared by every iteration; closures created
// in the body all capture that one variable.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.parser.consume(token.LEFT_PAREN, "Expect '(' after 'for'.")

	switch {
	case c.parser.match(token.SEMICOLON):
		// no initializer
	case c.parser.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.currentChunk().Len()
	exitJump := -1
	if !c.parser.match(token.SEMICOLON) {
		c.expression()
		c.parser.consume(token.SEMICOLON, "Expect ';' after loop condition.")

		exitJump = c.emitJump(OP_JUMP_IF_FALSE)
		c.emit(OP_POP)
	}

	if !c.parser.match(token.RIGHT_PAREN) {
		bodyJump := c.emitJump(OP_JUMP)
		incrementStart := c.currentChunk().Len()
		c.expression()
		c.emit(OP_POP)
		c.parser.consume(token.RIGHT_PAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emit(OP_POP)
	}

	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.funcType == TYPE_SCRIPT {
		c.parser.error("Can't return from top-level code.")
	}

	if c.parser.match(token.SEMICOLON) {
		c.emitReturn()
		return
	}

	if c.funcType == TYPE_INITIALIZER {
		c.parser.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.parser.consume(token.SEMICOLON, "Expect ';' after return value.")
	c.emit(OP_RETURN)
}
