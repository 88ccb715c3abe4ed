package sandbox

// node positions are 1-based source lines

type stmt interface {
	line() int
}

type expr interface {
	line() int
}

type pos int

func (p pos) line() int { return int(p) }

type (
	letStmt struct {
		pos
		name  string
		value expr
	}

	assignStmt struct {
		pos
		// target is identExpr, indexExpr or fieldExpr
		target expr
		value  expr
	}

	printStmt struct {
		pos
		args []expr
	}

	forStmt struct {
		pos
		name string
		iter expr
		body []stmt
	}

	ifStmt struct {
		pos
		cond expr
		then []stmt
		// els is nil, or the else block, which holds a single ifStmt for `else if`
		els []stmt
	}

	exprStmt struct {
		pos
		x expr
	}

	breakStmt struct {
		pos
	}

	continueStmt struct {
		pos
	}
)

type (
	literalExpr struct {
		pos
		value any
	}

	identExpr struct {
		pos
		name string
	}

	listExpr struct {
		pos
		items []expr
	}

	mapEntry struct {
		key   string
		value expr
	}

	mapExpr struct {
		pos
		entries []mapEntry
	}

	unaryExpr struct {
		pos
		op string
		x  expr
	}

	binaryExpr struct {
		pos
		op   string
		x, y expr
	}

	// logicalExpr short-circuits
	logicalExpr struct {
		pos
		op   string
		x, y expr
	}

	callExpr struct {
		pos
		fn   expr
		args []expr
	}

	indexExpr struct {
		pos
		x     expr
		index expr
	}

	sliceExpr struct {
		pos
		x          expr
		start, end expr
	}

	fieldExpr struct {
		pos
		x    expr
		name string
	}

	lambdaExpr struct {
		pos
		params []string
		body   expr
	}
)
