package parser

import (
	"fmt"
	"strings"
)

// Statement represents a parsed SQL statement.
type Statement interface {
	statementNode()
	String() string
}

// Expression represents an expression in the AST.
type Expression interface {
	expressionNode()
	String() string
}

// SelectStatement represents a SELECT query.
type SelectStatement struct {
	Distinct bool
	Columns  []SelectColumn
	From     []TableRef
	Joins    []JoinClause
	Where    Expression
	GroupBy  []Expression
	Having   Expression
	OrderBy  []OrderByClause
	Limit    *Token
	Offset   *Token
}

func (s *SelectStatement) statementNode() {}

// String returns the SQL representation of the SELECT statement.
func (s *SelectStatement) String() string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(joinStrings(s.Columns))

	if len(s.From) > 0 {
		sb.WriteString(" FROM ")
		sb.WriteString(joinStrings(s.From))
	}
	for _, j := range s.Joins {
		sb.WriteString(" ")
		sb.WriteString(j.String())
	}
	if s.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.Where.String())
	}
	if len(s.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(joinStrings(s.GroupBy))
	}
	if s.Having != nil {
		sb.WriteString(" HAVING ")
		sb.WriteString(s.Having.String())
	}
	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(joinStrings(s.OrderBy))
	}
	if s.Limit != nil {
		sb.WriteString(" LIMIT " + s.Limit.Literal)
	}
	if s.Offset != nil {
		sb.WriteString(" OFFSET " + s.Offset.Literal)
	}
	return sb.String()
}

// OtherStatement is any statement other than SELECT. Its body is skipped;
// only the leading keyword is kept so it can be reported.
type OtherStatement struct {
	Keyword string
}

func (o *OtherStatement) statementNode() {}

func (o *OtherStatement) String() string { return o.Keyword + " ..." }

// SelectColumn represents a column in the SELECT clause.
type SelectColumn struct {
	Expr  Expression
	Alias string
}

func (c SelectColumn) String() string {
	if c.Alias != "" {
		return fmt.Sprintf("%s AS %s", c.Expr.String(), c.Alias)
	}
	return c.Expr.String()
}

// TableRef is one FROM item: a table name, a table function call such as
// source('mock.users'), or a parenthesized subquery.
type TableRef struct {
	Name     string
	Func     *FunctionCall
	Subquery Statement
	Alias    string
}

func (t TableRef) String() string {
	var base string
	switch {
	case t.Func != nil:
		base = t.Func.String()
	case t.Subquery != nil:
		base = "(" + t.Subquery.String() + ")"
	default:
		base = t.Name
	}
	if t.Alias != "" {
		return fmt.Sprintf("%s AS %s", base, t.Alias)
	}
	return base
}

// JoinClause is an explicit JOIN following the first FROM item.
type JoinClause struct {
	Kind  string // INNER, LEFT, RIGHT, FULL, CROSS
	Table TableRef
	On    Expression
}

func (j JoinClause) String() string {
	s := fmt.Sprintf("%s JOIN %s", j.Kind, j.Table.String())
	if j.On != nil {
		s += " ON " + j.On.String()
	}
	return s
}

// OrderByClause represents an ORDER BY clause item.
type OrderByClause struct {
	Expr Expression
	Desc bool
}

func (o OrderByClause) String() string {
	if o.Desc {
		return fmt.Sprintf("%s DESC", o.Expr.String())
	}
	return fmt.Sprintf("%s ASC", o.Expr.String())
}

// BinaryExpr represents a binary operation (e.g., a = b, a AND b).
type BinaryExpr struct {
	Left     Expression
	Operator string
	Right    Expression
}

func (b *BinaryExpr) expressionNode() {}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Operator, b.Right.String())
}

// UnaryExpr represents a unary operation (e.g., NOT x, -x).
type UnaryExpr struct {
	Operator string
	Operand  Expression
}

func (u *UnaryExpr) expressionNode() {}

func (u *UnaryExpr) String() string {
	return fmt.Sprintf("%s %s", u.Operator, u.Operand.String())
}

// ColumnRef represents a column reference. Table holds every qualifier
// part joined with dots.
type ColumnRef struct {
	Table  string
	Column string
}

func (c *ColumnRef) expressionNode() {}

func (c *ColumnRef) String() string {
	if c.Table != "" {
		return fmt.Sprintf("%s.%s", c.Table, c.Column)
	}
	return c.Column
}

// Literal represents a literal value: string, int64, float64, bool or nil.
// Number literals keep their source text in Raw.
type Literal struct {
	Value interface{}
	Raw   string
}

func (l *Literal) expressionNode() {}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case nil:
		return "NULL"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		if l.Raw != "" {
			return l.Raw
		}
		return fmt.Sprintf("%v", v)
	}
}

// StarExpr represents the * wildcard.
type StarExpr struct {
	Table string // Optional table qualifier (e.g., t.*)
}

func (s *StarExpr) expressionNode() {}

func (s *StarExpr) String() string {
	if s.Table != "" {
		return fmt.Sprintf("%s.*", s.Table)
	}
	return "*"
}

// FunctionCall represents a function call expression, aggregates included.
type FunctionCall struct {
	Name     string
	Args     []Expression
	Distinct bool
}

func (f *FunctionCall) expressionNode() {}

func (f *FunctionCall) String() string {
	prefix := ""
	if f.Distinct {
		prefix = "DISTINCT "
	}
	return fmt.Sprintf("%s(%s%s)", f.Name, prefix, joinStrings(f.Args))
}

// InExpr represents an IN expression (e.g., x IN (1, 2, 3)).
type InExpr struct {
	Expr   Expression
	Values []Expression
	Not    bool
}

func (i *InExpr) expressionNode() {}

func (i *InExpr) String() string {
	op := "IN"
	if i.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", i.Expr.String(), op, joinStrings(i.Values))
}

// BetweenExpr represents a BETWEEN expression.
type BetweenExpr struct {
	Expr Expression
	Low  Expression
	High Expression
	Not  bool
}

func (b *BetweenExpr) expressionNode() {}

func (b *BetweenExpr) String() string {
	op := "BETWEEN"
	if b.Not {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("%s %s %s AND %s", b.Expr.String(), op, b.Low.String(), b.High.String())
}

// IsNullExpr represents an IS NULL or IS NOT NULL expression.
type IsNullExpr struct {
	Expr Expression
	Not  bool
}

func (i *IsNullExpr) expressionNode() {}

func (i *IsNullExpr) String() string {
	if i.Not {
		return fmt.Sprintf("%s IS NOT NULL", i.Expr.String())
	}
	return fmt.Sprintf("%s IS NULL", i.Expr.String())
}

// LikeExpr represents a LIKE expression.
type LikeExpr struct {
	Expr    Expression
	Pattern Expression
	Not     bool
}

func (l *LikeExpr) expressionNode() {}

func (l *LikeExpr) String() string {
	op := "LIKE"
	if l.Not {
		op = "NOT LIKE"
	}
	return fmt.Sprintf("%s %s %s", l.Expr.String(), op, l.Pattern.String())
}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Expr Expression
}

func (p *ParenExpr) expressionNode() {}

func (p *ParenExpr) String() string {
	return fmt.Sprintf("(%s)", p.Expr.String())
}

func joinStrings[T fmt.Stringer](items []T) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, ", ")
}
