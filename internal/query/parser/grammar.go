package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError represents a grammar failure with location information.
type SyntaxError struct {
	Dialect  string
	Message  string
	Position int
	Token    Token
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: syntax error at position %d: %s (got %q)", e.Dialect, e.Position, e.Message, e.Token.Literal)
}

// statementKeywords are leading keywords of statements the engine
// recognizes but does not execute.
var statementKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true, "REPLACE": true,
	"CREATE": true, "DROP": true, "ALTER": true, "TRUNCATE": true, "RENAME": true,
	"GRANT": true, "REVOKE": true, "BEGIN": true, "COMMIT": true, "ROLLBACK": true,
	"START": true, "SET": true, "SHOW": true, "EXPLAIN": true, "DESCRIBE": true, "WITH": true,
	"VALUES": true, "USE": true, "COPY": true, "PRAGMA": true, "ANALYZE": true, "VACUUM": true,
}

// grammar is a recursive-descent SQL parser for a single dialect.
type grammar struct {
	dialect   Dialect
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

func newGrammar(input string, d Dialect) *grammar {
	g := &grammar{dialect: d, lexer: NewDialectLexer(input, d)}
	// Read two tokens to initialize curToken and peekToken
	g.nextToken()
	g.nextToken()
	return g
}

// ParseStatements parses every statement in input using dialect d.
func ParseStatements(input string, d Dialect) ([]Statement, error) {
	return newGrammar(input, d).parseStatements()
}

func (g *grammar) nextToken() {
	g.curToken = g.peekToken
	g.peekToken = g.lexer.NextToken()
}

func (g *grammar) curTokenIs(t TokenType) bool {
	return g.curToken.Type == t
}

func (g *grammar) errorf(format string, args ...interface{}) error {
	return &SyntaxError{
		Dialect:  g.dialect.Name,
		Message:  fmt.Sprintf(format, args...),
		Position: g.curToken.Pos,
		Token:    g.curToken,
	}
}

func (g *grammar) parseStatements() ([]Statement, error) {
	var stmts []Statement
	for {
		for g.curTokenIs(TokenSemicolon) {
			g.nextToken()
		}
		if g.curTokenIs(TokenEOF) {
			return stmts, nil
		}
		if g.curTokenIs(TokenError) {
			return nil, g.errorf("invalid token")
		}

		stmt, err := g.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)

		if !g.curTokenIs(TokenSemicolon) && !g.curTokenIs(TokenEOF) {
			return nil, g.errorf("unexpected token after statement")
		}
	}
}

func (g *grammar) parseStatement() (Statement, error) {
	switch {
	case g.curTokenIs(TokenSelect):
		return g.parseSelectStatement()
	case g.curTokenIs(TokenIdent) && !g.curToken.Quoted && statementKeywords[strings.ToUpper(g.curToken.Literal)]:
		stmt := &OtherStatement{Keyword: strings.ToUpper(g.curToken.Literal)}
		for !g.curTokenIs(TokenSemicolon) && !g.curTokenIs(TokenEOF) {
			if g.curTokenIs(TokenError) {
				return nil, g.errorf("invalid token")
			}
			g.nextToken()
		}
		return stmt, nil
	default:
		return nil, g.errorf("expected statement")
	}
}

func (g *grammar) parseSelectStatement() (*SelectStatement, error) {
	stmt := &SelectStatement{}
	g.nextToken() // SELECT

	if g.curTokenIs(TokenDistinct) {
		stmt.Distinct = true
		g.nextToken()
	}

	columns, err := g.parseSelectColumns()
	if err != nil {
		return nil, err
	}
	stmt.Columns = columns

	if g.curTokenIs(TokenFrom) {
		g.nextToken()
		for {
			ref, err := g.parseTableRef()
			if err != nil {
				return nil, err
			}
			stmt.From = append(stmt.From, ref)
			if !g.curTokenIs(TokenComma) {
				break
			}
			g.nextToken()
		}
		for g.isJoinStart() {
			join, err := g.parseJoin()
			if err != nil {
				return nil, err
			}
			stmt.Joins = append(stmt.Joins, join)
		}
	}

	if g.curTokenIs(TokenWhere) {
		g.nextToken()
		where, err := g.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if g.curTokenIs(TokenGroup) {
		if err := g.expectBy(); err != nil {
			return nil, err
		}
		groupBy, err := g.parseExpressionList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = groupBy
	}

	if g.curTokenIs(TokenHaving) {
		g.nextToken()
		having, err := g.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Having = having
	}

	if g.curTokenIs(TokenOrder) {
		if err := g.expectBy(); err != nil {
			return nil, err
		}
		orderBy, err := g.parseOrderByList()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = orderBy
	}

	if g.curTokenIs(TokenLimit) {
		g.nextToken()
		if !g.curTokenIs(TokenNumber) {
			return nil, g.errorf("expected number after LIMIT")
		}
		tok := g.curToken
		stmt.Limit = &tok
		g.nextToken()
	}

	if g.curTokenIs(TokenOffset) {
		g.nextToken()
		if !g.curTokenIs(TokenNumber) {
			return nil, g.errorf("expected number after OFFSET")
		}
		tok := g.curToken
		stmt.Offset = &tok
		g.nextToken()
	}

	return stmt, nil
}

// expectBy consumes GROUP/ORDER and the BY that must follow.
func (g *grammar) expectBy() error {
	g.nextToken()
	if !g.curTokenIs(TokenBy) {
		return g.errorf("expected BY")
	}
	g.nextToken()
	return nil
}

func (g *grammar) parseSelectColumns() ([]SelectColumn, error) {
	var columns []SelectColumn
	for {
		col, err := g.parseSelectColumn()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)

		if !g.curTokenIs(TokenComma) {
			break
		}
		g.nextToken()
	}
	return columns, nil
}

func (g *grammar) parseSelectColumn() (SelectColumn, error) {
	col := SelectColumn{}

	if g.curTokenIs(TokenStar) {
		col.Expr = &StarExpr{}
		g.nextToken()
		return col, nil
	}

	expr, err := g.parseExpression(precLowest)
	if err != nil {
		return col, err
	}
	col.Expr = expr

	alias, err := g.parseAlias()
	if err != nil {
		return col, err
	}
	col.Alias = alias
	return col, nil
}

// parseAlias reads an optional "AS name" or bare "name".
func (g *grammar) parseAlias() (string, error) {
	if g.curTokenIs(TokenAs) {
		g.nextToken()
		if !g.curTokenIs(TokenIdent) {
			return "", g.errorf("expected identifier after AS")
		}
		alias := g.curToken.Literal
		g.nextToken()
		return alias, nil
	}
	if g.curTokenIs(TokenIdent) {
		alias := g.curToken.Literal
		g.nextToken()
		return alias, nil
	}
	return "", nil
}

func (g *grammar) parseTableRef() (TableRef, error) {
	var ref TableRef

	switch {
	case g.curTokenIs(TokenLParen):
		g.nextToken()
		if !g.curTokenIs(TokenSelect) {
			return ref, g.errorf("expected SELECT in derived table")
		}
		sub, err := g.parseSelectStatement()
		if err != nil {
			return ref, err
		}
		if !g.curTokenIs(TokenRParen) {
			return ref, g.errorf("expected ) after derived table")
		}
		g.nextToken()
		ref.Subquery = sub

	case g.curTokenIs(TokenIdent):
		name := g.curToken.Literal
		g.nextToken()
		for g.curTokenIs(TokenDot) {
			g.nextToken()
			if !g.curTokenIs(TokenIdent) {
				return ref, g.errorf("expected identifier after dot")
			}
			name += "." + g.curToken.Literal
			g.nextToken()
		}
		if g.curTokenIs(TokenLParen) {
			fn, err := g.parseFunctionCall(name)
			if err != nil {
				return ref, err
			}
			ref.Func = fn.(*FunctionCall)
		} else {
			ref.Name = name
		}

	default:
		return ref, g.errorf("expected table name")
	}

	alias, err := g.parseAlias()
	if err != nil {
		return ref, err
	}
	ref.Alias = alias
	return ref, nil
}

func (g *grammar) isJoinStart() bool {
	switch g.curToken.Type {
	case TokenJoin, TokenInner, TokenLeft, TokenRight, TokenFull, TokenCross:
		return true
	}
	return false
}

func (g *grammar) parseJoin() (JoinClause, error) {
	join := JoinClause{Kind: "INNER"}
	switch g.curToken.Type {
	case TokenInner, TokenLeft, TokenRight, TokenFull, TokenCross:
		join.Kind = g.curToken.Literal
		g.nextToken()
		if g.curTokenIs(TokenOuter) {
			g.nextToken()
		}
	}
	if !g.curTokenIs(TokenJoin) {
		return join, g.errorf("expected JOIN")
	}
	g.nextToken()

	table, err := g.parseTableRef()
	if err != nil {
		return join, err
	}
	join.Table = table

	if g.curTokenIs(TokenOn) {
		g.nextToken()
		on, err := g.parseExpression(precLowest)
		if err != nil {
			return join, err
		}
		join.On = on
	}
	return join, nil
}

func (g *grammar) parseExpressionList() ([]Expression, error) {
	var exprs []Expression
	for {
		expr, err := g.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)

		if !g.curTokenIs(TokenComma) {
			break
		}
		g.nextToken()
	}
	return exprs, nil
}

func (g *grammar) parseOrderByList() ([]OrderByClause, error) {
	var clauses []OrderByClause
	for {
		expr, err := g.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}

		clause := OrderByClause{Expr: expr}
		if g.curTokenIs(TokenAsc) {
			g.nextToken()
		} else if g.curTokenIs(TokenDesc) {
			clause.Desc = true
			g.nextToken()
		}
		clauses = append(clauses, clause)

		if !g.curTokenIs(TokenComma) {
			break
		}
		g.nextToken()
	}
	return clauses, nil
}

// Operator precedence levels
const (
	precLowest  = 0
	precOr      = 1
	precAnd     = 2
	precNot     = 3
	precCompare = 4
	precAdd     = 5
	precMul     = 6
	precUnary   = 7
)

func (g *grammar) getPrecedence() int {
	switch g.curToken.Type {
	case TokenOr:
		return precOr
	case TokenAnd:
		return precAnd
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe, TokenLike, TokenIn, TokenBetween, TokenIs, TokenNot:
		return precCompare
	case TokenPlus, TokenMinus:
		return precAdd
	case TokenStar, TokenSlash:
		return precMul
	default:
		return precLowest
	}
}

func (g *grammar) parseExpression(precedence int) (Expression, error) {
	left, err := g.parsePrefixExpression()
	if err != nil {
		return nil, err
	}

	for !g.curTokenIs(TokenEOF) && precedence < g.getPrecedence() {
		left, err = g.parseInfixExpression(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (g *grammar) parsePrefixExpression() (Expression, error) {
	switch g.curToken.Type {
	case TokenIdent:
		return g.parseIdentifierOrFunction()
	case TokenNumber:
		return g.parseNumber()
	case TokenString:
		val := g.curToken.Literal
		g.nextToken()
		return &Literal{Value: val}, nil
	case TokenNull:
		g.nextToken()
		return &Literal{Value: nil}, nil
	case TokenTrue, TokenFalse:
		val := g.curTokenIs(TokenTrue)
		g.nextToken()
		return &Literal{Value: val}, nil
	case TokenLParen:
		return g.parseGroupedExpression()
	case TokenNot:
		g.nextToken()
		expr, err := g.parseExpression(precNot)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: "NOT", Operand: expr}, nil
	case TokenMinus:
		g.nextToken()
		expr, err := g.parseExpression(precUnary)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: "-", Operand: expr}, nil
	case TokenStar:
		g.nextToken()
		return &StarExpr{}, nil
	default:
		return nil, g.errorf("unexpected token in expression")
	}
}

func (g *grammar) parseIdentifierOrFunction() (Expression, error) {
	parts := []string{g.curToken.Literal}
	g.nextToken()

	for g.curTokenIs(TokenDot) {
		g.nextToken()
		if g.curTokenIs(TokenStar) {
			g.nextToken()
			return &StarExpr{Table: strings.Join(parts, ".")}, nil
		}
		if !g.curTokenIs(TokenIdent) {
			return nil, g.errorf("expected column name after dot")
		}
		parts = append(parts, g.curToken.Literal)
		g.nextToken()
	}

	if g.curTokenIs(TokenLParen) {
		return g.parseFunctionCall(strings.Join(parts, "."))
	}

	last := len(parts) - 1
	return &ColumnRef{Table: strings.Join(parts[:last], "."), Column: parts[last]}, nil
}

func (g *grammar) parseFunctionCall(name string) (Expression, error) {
	g.nextToken() // (

	fn := &FunctionCall{Name: name}
	if g.curTokenIs(TokenDistinct) {
		fn.Distinct = true
		g.nextToken()
	}

	if !g.curTokenIs(TokenRParen) {
		for {
			arg, err := g.parseExpression(precLowest)
			if err != nil {
				return nil, err
			}
			fn.Args = append(fn.Args, arg)

			if !g.curTokenIs(TokenComma) {
				break
			}
			g.nextToken()
		}
	}

	if !g.curTokenIs(TokenRParen) {
		return nil, g.errorf("expected ) after function arguments")
	}
	g.nextToken()
	return fn, nil
}

func (g *grammar) parseNumber() (Expression, error) {
	literal := g.curToken.Literal
	tok := g.curToken
	g.nextToken()

	if val, err := strconv.ParseInt(literal, 10, 64); err == nil {
		return &Literal{Value: val, Raw: literal}, nil
	}
	val, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, &SyntaxError{Dialect: g.dialect.Name, Message: "invalid number", Position: tok.Pos, Token: tok}
	}
	return &Literal{Value: val, Raw: literal}, nil
}

func (g *grammar) parseGroupedExpression() (Expression, error) {
	g.nextToken() // (

	expr, err := g.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if !g.curTokenIs(TokenRParen) {
		return nil, g.errorf("expected )")
	}
	g.nextToken()
	return &ParenExpr{Expr: expr}, nil
}

func (g *grammar) parseInfixExpression(left Expression) (Expression, error) {
	switch g.curToken.Type {
	case TokenAnd, TokenOr, TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe,
		TokenPlus, TokenMinus, TokenStar, TokenSlash:
		return g.parseBinaryExpression(left)
	case TokenLike:
		return g.parseLikeExpression(left, false)
	case TokenIn:
		return g.parseInExpression(left, false)
	case TokenBetween:
		return g.parseBetweenExpression(left, false)
	case TokenIs:
		return g.parseIsExpression(left)
	case TokenNot:
		return g.parseNotInfix(left)
	default:
		return left, nil
	}
}

func (g *grammar) parseBinaryExpression(left Expression) (Expression, error) {
	op := g.curToken.Literal
	precedence := g.getPrecedence()
	g.nextToken()

	right, err := g.parseExpression(precedence)
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Left: left, Operator: op, Right: right}, nil
}

func (g *grammar) parseLikeExpression(left Expression, not bool) (Expression, error) {
	g.nextToken() // LIKE

	pattern, err := g.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}
	return &LikeExpr{Expr: left, Pattern: pattern, Not: not}, nil
}

func (g *grammar) parseInExpression(left Expression, not bool) (Expression, error) {
	g.nextToken() // IN

	if !g.curTokenIs(TokenLParen) {
		return nil, g.errorf("expected ( after IN")
	}
	g.nextToken()

	values, err := g.parseExpressionList()
	if err != nil {
		return nil, err
	}
	if !g.curTokenIs(TokenRParen) {
		return nil, g.errorf("expected ) after IN values")
	}
	g.nextToken()

	return &InExpr{Expr: left, Values: values, Not: not}, nil
}

func (g *grammar) parseBetweenExpression(left Expression, not bool) (Expression, error) {
	g.nextToken() // BETWEEN

	low, err := g.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}
	if !g.curTokenIs(TokenAnd) {
		return nil, g.errorf("expected AND in BETWEEN expression")
	}
	g.nextToken()

	high, err := g.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}
	return &BetweenExpr{Expr: left, Low: low, High: high, Not: not}, nil
}

func (g *grammar) parseIsExpression(left Expression) (Expression, error) {
	g.nextToken() // IS

	not := false
	if g.curTokenIs(TokenNot) {
		not = true
		g.nextToken()
	}
	if !g.curTokenIs(TokenNull) {
		return nil, g.errorf("expected NULL after IS")
	}
	g.nextToken()
	return &IsNullExpr{Expr: left, Not: not}, nil
}

// parseNotInfix parses NOT IN, NOT LIKE and NOT BETWEEN.
func (g *grammar) parseNotInfix(left Expression) (Expression, error) {
	g.nextToken() // NOT

	switch g.curToken.Type {
	case TokenIn:
		return g.parseInExpression(left, true)
	case TokenLike:
		return g.parseLikeExpression(left, true)
	case TokenBetween:
		return g.parseBetweenExpression(left, true)
	default:
		return nil, g.errorf("expected IN, LIKE, or BETWEEN after NOT")
	}
}
