package sandbox

// MaxNesting bounds nested blocks and expressions in a script
const MaxNesting = 500

type parser struct {
	tokens []token
	pos    int
	// loop nesting, break and continue are valid only inside loops
	loops int
	// block and expression nesting
	depth int
}

// parse returns the statements of the script, or a SyntaxError fault.
func parse(src string) (prog []stmt, err error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fault)
			if !ok {
				panic(r)
			}
			prog, err = nil, f
		}
	}()

	prog = p.stmtList()
	if tok := p.peek(); tok.kind != tokEOF {
		p.fail(tok, "unexpected %s", tok)
	}
	return prog, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) fail(tok token, format string, args ...any) {
	panic(syntaxError(tok.line, format, args...))
}

func (p *parser) isOp(text string) bool {
	return p.peek().is(tokOp, text)
}

func (p *parser) isKeyword(text string) bool {
	return p.peek().is(tokKeyword, text)
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.peek().is(kind, text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) token {
	tok := p.peek()
	if !tok.is(kind, text) {
		p.fail(tok, "expected '%s', got %s", text, tok)
	}
	return p.next()
}

func (p *parser) expectIdent() token {
	tok := p.peek()
	if tok.kind != tokIdent {
		p.fail(tok, "expected name, got %s", tok)
	}
	return p.next()
}

func (p *parser) enter() {
	p.depth++
	if p.depth > MaxNesting {
		p.fail(p.peek(), "too many nested blocks or expressions (limit %d)", MaxNesting)
	}
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) skipSeparators() {
	for p.peek().kind == tokNewline || p.isOp(";") {
		p.next()
	}
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.next()
	}
}

// stmtList parses statements up to '}' or the end of script.
func (p *parser) stmtList() []stmt {
	var list []stmt
	for {
		p.skipSeparators()
		tok := p.peek()
		if tok.kind == tokEOF || tok.is(tokOp, "}") {
			return list
		}
		list = append(list, p.statement())
		p.endOfStatement()
	}
}

func (p *parser) endOfStatement() {
	tok := p.peek()
	if tok.kind == tokNewline || tok.kind == tokEOF || tok.is(tokOp, ";") || tok.is(tokOp, "}") {
		return
	}
	p.fail(tok, "unexpected %s", tok)
}

func (p *parser) atEndOfStatement() bool {
	tok := p.peek()
	return tok.kind == tokNewline || tok.kind == tokEOF || tok.is(tokOp, ";") || tok.is(tokOp, "}")
}

func (p *parser) block() []stmt {
	p.enter()
	defer p.leave()
	p.expect(tokOp, "{")
	body := p.stmtList()
	p.expect(tokOp, "}")
	return body
}

func (p *parser) statement() stmt {
	tok := p.peek()
	if tok.kind == tokKeyword {
		switch tok.text {
		case "let":
			p.next()
			name := p.expectIdent()
			p.expect(tokOp, "=")
			return &letStmt{pos: pos(tok.line), name: name.text, value: p.expression()}
		case "print":
			p.next()
			return &printStmt{pos: pos(tok.line), args: p.printArgs()}
		case "for":
			p.next()
			name := p.expectIdent()
			p.expect(tokKeyword, "in")
			iter := p.expression()
			p.loops++
			body := p.block()
			p.loops--
			return &forStmt{pos: pos(tok.line), name: name.text, iter: iter, body: body}
		case "if":
			return p.ifStatement()
		case "break", "continue":
			p.next()
			if p.loops == 0 {
				p.fail(tok, "'%s' outside loop", tok.text)
			}
			if tok.text == "break" {
				return &breakStmt{pos: pos(tok.line)}
			}
			return &continueStmt{pos: pos(tok.line)}
		case "else":
			p.fail(tok, "'else' without 'if'")
		}
	}

	x := p.expression()
	if p.isOp("=") {
		eq := p.next()
		switch x.(type) {
		case *identExpr, *indexExpr, *fieldExpr:
		default:
			p.fail(eq, "cannot assign to expression")
		}
		return &assignStmt{pos: pos(tok.line), target: x, value: p.expression()}
	}
	return &exprStmt{pos: pos(tok.line), x: x}
}

// printArgs parses `print a, b` and `print(a, b)`.
func (p *parser) printArgs() []expr {
	if p.atEndOfStatement() {
		return nil
	}
	if p.isOp("(") {
		save := p.pos
		p.next()
		args := p.exprList(")")
		p.expect(tokOp, ")")
		if p.atEndOfStatement() {
			return args
		}
		// the parenthesis starts an expression, like `print (a + b) * 2`
		p.pos = save
	}
	args := []expr{p.expression()}
	for p.accept(tokOp, ",") {
		args = append(args, p.expression())
	}
	return args
}

func (p *parser) ifStatement() stmt {
	tok := p.expect(tokKeyword, "if")
	st := &ifStmt{pos: pos(tok.line)}
	st.cond = p.expression()
	st.then = p.block()

	// else may follow on the next line
	save := p.pos
	p.skipNewlines()
	if !p.accept(tokKeyword, "else") {
		p.pos = save
		return st
	}
	if p.isKeyword("if") {
		p.enter()
		defer p.leave()
		st.els = []stmt{p.ifStatement()}
	} else {
		st.els = p.block()
	}
	return st
}

// exprList parses comma separated expressions up to the closing token,
// allowing a trailing comma.
func (p *parser) exprList(closing string) []expr {
	var list []expr
	for !p.isOp(closing) {
		list = append(list, p.expression())
		if !p.accept(tokOp, ",") {
			break
		}
	}
	return list
}

func (p *parser) expression() expr {
	p.enter()
	defer p.leave()
	if lambda := p.tryLambda(); lambda != nil {
		return lambda
	}
	return p.or()
}

// tryLambda parses `x => body` or `(a, b) => body`.
func (p *parser) tryLambda() expr {
	tok := p.peek()
	if tok.kind == tokIdent && p.peekAt(1).is(tokOp, "=>") {
		p.next()
		p.next()
		return &lambdaExpr{pos: pos(tok.line), params: []string{tok.text}, body: p.expression()}
	}
	if !tok.is(tokOp, "(") {
		return nil
	}

	// scan ahead: ( [ident {, ident}] ) =>
	var params []string
	i := 1
	for {
		t := p.peekAt(i)
		if t.is(tokOp, ")") {
			break
		}
		if t.kind != tokIdent {
			return nil
		}
		params = append(params, t.text)
		i++
		if p.peekAt(i).is(tokOp, ",") {
			i++
			continue
		}
		if !p.peekAt(i).is(tokOp, ")") {
			return nil
		}
	}
	if !p.peekAt(i + 1).is(tokOp, "=>") {
		return nil
	}
	p.pos += i + 2
	return &lambdaExpr{pos: pos(tok.line), params: params, body: p.expression()}
}

func (p *parser) or() expr {
	x := p.and()
	for p.isKeyword("or") || p.isOp("||") {
		tok := p.next()
		x = &logicalExpr{pos: pos(tok.line), op: "or", x: x, y: p.and()}
	}
	return x
}

func (p *parser) and() expr {
	x := p.not()
	for p.isKeyword("and") || p.isOp("&&") {
		tok := p.next()
		x = &logicalExpr{pos: pos(tok.line), op: "and", x: x, y: p.not()}
	}
	return x
}

func (p *parser) not() expr {
	if p.isKeyword("not") || p.isOp("!") {
		p.enter()
		defer p.leave()
		tok := p.next()
		return &unaryExpr{pos: pos(tok.line), op: "not", x: p.not()}
	}
	return p.comparison()
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (p *parser) comparison() expr {
	x := p.additive()
	tok := p.peek()
	switch {
	case tok.kind == tokOp && comparisonOps[tok.text]:
		p.next()
		x = &binaryExpr{pos: pos(tok.line), op: tok.text, x: x, y: p.additive()}
	case tok.is(tokKeyword, "in"):
		p.next()
		x = &binaryExpr{pos: pos(tok.line), op: "in", x: x, y: p.additive()}
	case tok.is(tokKeyword, "not") && p.peekAt(1).is(tokKeyword, "in"):
		p.next()
		p.next()
		in := &binaryExpr{pos: pos(tok.line), op: "in", x: x, y: p.additive()}
		x = &unaryExpr{pos: pos(tok.line), op: "not", x: in}
	default:
		return x
	}
	if next := p.peek(); next.kind == tokOp && comparisonOps[next.text] {
		p.fail(next, "chained comparison is not supported")
	}
	return x
}

func (p *parser) additive() expr {
	x := p.multiplicative()
	for p.isOp("+") || p.isOp("-") {
		tok := p.next()
		x = &binaryExpr{pos: pos(tok.line), op: tok.text, x: x, y: p.multiplicative()}
	}
	return x
}

func (p *parser) multiplicative() expr {
	x := p.unary()
	for p.isOp("*") || p.isOp("/") || p.isOp("%") {
		tok := p.next()
		x = &binaryExpr{pos: pos(tok.line), op: tok.text, x: x, y: p.unary()}
	}
	return x
}

func (p *parser) unary() expr {
	if p.isOp("-") {
		p.enter()
		defer p.leave()
		tok := p.next()
		return &unaryExpr{pos: pos(tok.line), op: "-", x: p.unary()}
	}
	return p.postfix()
}

func (p *parser) postfix() expr {
	x := p.primary()
	for {
		tok := p.peek()
		switch {
		case tok.is(tokOp, "("):
			p.next()
			args := p.exprList(")")
			p.expect(tokOp, ")")
			x = &callExpr{pos: pos(tok.line), fn: x, args: args}
		case tok.is(tokOp, "["):
			p.next()
			x = p.indexOrSlice(tok, x)
		case tok.is(tokOp, "."):
			p.next()
			name := p.peek()
			if name.kind != tokIdent && name.kind != tokKeyword {
				p.fail(name, "expected field name, got %s", name)
			}
			p.next()
			x = &fieldExpr{pos: pos(tok.line), x: x, name: name.text}
		default:
			return x
		}
	}
}

func (p *parser) indexOrSlice(tok token, x expr) expr {
	var start expr
	if !p.isOp(":") {
		start = p.expression()
	}
	if p.accept(tokOp, ":") {
		var end expr
		if !p.isOp("]") {
			end = p.expression()
		}
		p.expect(tokOp, "]")
		return &sliceExpr{pos: pos(tok.line), x: x, start: start, end: end}
	}
	p.expect(tokOp, "]")
	return &indexExpr{pos: pos(tok.line), x: x, index: start}
}

func (p *parser) primary() expr {
	tok := p.next()
	at := pos(tok.line)
	switch tok.kind {
	case tokNumber:
		return &literalExpr{pos: at, value: tok.num}
	case tokString:
		return &literalExpr{pos: at, value: tok.text}
	case tokIdent:
		return &identExpr{pos: at, name: tok.text}
	case tokKeyword:
		switch tok.text {
		case "true":
			return &literalExpr{pos: at, value: true}
		case "false":
			return &literalExpr{pos: at, value: false}
		case "null", "nil":
			return &literalExpr{pos: at, value: nil}
		case "print":
			p.fail(tok, "'print' is a statement")
		}
	case tokOp:
		switch tok.text {
		case "(":
			x := p.expression()
			p.expect(tokOp, ")")
			return x
		case "[":
			items := p.exprList("]")
			p.expect(tokOp, "]")
			return &listExpr{pos: at, items: items}
		case "{":
			return p.mapLiteral(tok)
		}
	}
	p.fail(tok, "unexpected %s", tok)
	return nil
}

func (p *parser) mapLiteral(tok token) expr {
	m := &mapExpr{pos: pos(tok.line)}
	for {
		p.skipNewlines()
		if p.accept(tokOp, "}") {
			return m
		}
		key := p.next()
		switch key.kind {
		case tokString, tokIdent, tokKeyword, tokNumber:
		default:
			p.fail(key, "expected map key, got %s", key)
		}
		p.skipNewlines()
		p.expect(tokOp, ":")
		p.skipNewlines()
		m.entries = append(m.entries, mapEntry{key: key.text, value: p.expression()})
		p.skipNewlines()
		if !p.accept(tokOp, ",") {
			p.skipNewlines()
			p.expect(tokOp, "}")
			return m
		}
	}
}
