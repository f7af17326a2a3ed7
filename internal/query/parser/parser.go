package parser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

const sourceFunction = "source"

// Parser converts SQL text into a types.Query. It is stateless and safe
// for concurrent use.
type Parser struct {
	dialects []Dialect
}

// Option configures a Parser.
type Option func(*Parser)

// WithDialects replaces the dialect fallback order.
func WithDialects(dialects ...Dialect) Option {
	return func(p *Parser) {
		p.dialects = dialects
	}
}

// New creates a Parser that tries DefaultDialects in order.
func New(opts ...Option) *Parser {
	p := &Parser{dialects: DefaultDialects}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Parse parses sql with the default dialect order.
func Parse(sql string) (*types.Query, error) {
	return defaultParser.Parse(context.Background(), sql)
}

// Parse converts one SELECT statement into the query model.
func (p *Parser) Parse(ctx context.Context, sql string) (*types.Query, error) {
	stmts, err := p.parseWithDialects(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, nerrors.NewParseError(nerrors.CodeUnsupportedFeature,
			fmt.Sprintf("Expected exactly one statement, got %d", len(stmts)))
	}

	sel, ok := stmts[0].(*SelectStatement)
	if !ok {
		return nil, nerrors.NewParseError(nerrors.CodeUnsupportedFeature,
			fmt.Sprintf("Only SELECT queries are supported, got %s", stmts[0].(*OtherStatement).Keyword))
	}
	return convertSelect(sel)
}

// Validate reports whether sql is syntactically valid in any dialect.
func (p *Parser) Validate(sql string) bool {
	_, err := p.parseWithDialects(sql)
	return err == nil
}

// parseWithDialects returns the statements from the first dialect that
// yields at least one.
func (p *Parser) parseWithDialects(sql string) ([]Statement, error) {
	var lastErr error
	for _, d := range p.dialects {
		stmts, err := ParseStatements(sql, d)
		if err != nil {
			lastErr = err
			continue
		}
		if len(stmts) > 0 {
			return stmts, nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no statements found")
	}
	return nil, nerrors.Wrap(nerrors.ErrCategoryParse, nerrors.CodeInvalidSyntax,
		"Failed to parse SQL with any supported dialect", lastErr)
}

func convertSelect(sel *SelectStatement) (*types.Query, error) {
	switch {
	case sel.Distinct:
		return nil, unsupported("SELECT DISTINCT is not supported")
	case len(sel.Joins) > 0:
		return nil, unsupported("JOIN clauses are not supported; cross-source joins are out of scope")
	case len(sel.GroupBy) > 0:
		return nil, unsupported("GROUP BY is not supported")
	case sel.Having != nil:
		return nil, unsupported("HAVING is not supported")
	case sel.Offset != nil:
		return nil, unsupported("OFFSET is not supported")
	}

	q := types.NewQuery(types.OperationSelect)

	projections, err := extractProjections(sel.Columns)
	if err != nil {
		return nil, err
	}
	q.Projections = projections

	sources, err := extractSources(sel.From)
	if err != nil {
		return nil, err
	}
	q.Sources = sources

	if sel.Where != nil {
		var preds []types.Predicate
		if err := extractPredicates(sel.Where, &preds); err != nil {
			return nil, err
		}
		q.Predicates = preds
	}

	if len(sel.OrderBy) > 0 {
		ordering, err := extractOrderBy(sel.OrderBy)
		if err != nil {
			return nil, err
		}
		q.Ordering = ordering
	}

	if sel.Limit != nil {
		n, err := strconv.ParseUint(sel.Limit.Literal, 10, 64)
		if err != nil {
			return nil, nerrors.NewParseError(nerrors.CodeInvalidSyntax,
				fmt.Sprintf("Invalid LIMIT value: %s", sel.Limit.Literal))
		}
		q.Limit = &n
	}

	return q, nil
}

func unsupported(msg string) error {
	return nerrors.NewParseError(nerrors.CodeUnsupportedFeature, msg)
}

func invalidSource(msg string) error {
	return nerrors.NewParseError(nerrors.CodeInvalidSourceFormat, msg)
}

func extractProjections(cols []SelectColumn) ([]types.Column, error) {
	out := make([]types.Column, 0, len(cols))
	for _, col := range cols {
		switch e := col.Expr.(type) {
		case *StarExpr:
			out = append(out, types.Column{Name: "*", Source: e.Table})
		case *ColumnRef:
			out = append(out, types.Column{Name: e.Column, Alias: col.Alias, Source: e.Table})
		case *FunctionCall:
			if strings.EqualFold(e.Name, sourceFunction) {
				return nil, invalidSource("source() function should be used in FROM clause, not SELECT")
			}
			out = append(out, types.Column{Name: e.Name, Alias: col.Alias})
		default:
			out = append(out, types.Column{Name: "expr", Alias: col.Alias})
		}
	}
	return out, nil
}

func extractSources(from []TableRef) ([]types.DataSource, error) {
	if len(from) == 0 {
		return nil, nerrors.NewParseError(nerrors.CodeMissingSource, "Query has no FROM clause")
	}

	sources := make([]types.DataSource, 0, len(from))
	for _, ref := range from {
		src, err := extractSource(ref)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func extractSource(ref TableRef) (types.DataSource, error) {
	switch {
	case ref.Subquery != nil:
		return types.DataSource{}, unsupported("Subqueries in FROM are not supported")
	case ref.Func != nil:
		if !strings.EqualFold(ref.Func.Name, sourceFunction) {
			return types.DataSource{}, unsupported(fmt.Sprintf("Function %s not supported in FROM clause", ref.Func.Name))
		}
		objectType, identifier, err := sourceSpec(ref.Func.Args)
		if err != nil {
			return types.DataSource{}, err
		}
		return types.DataSource{ObjectType: objectType, Identifier: identifier, Alias: ref.Alias}, nil
	default:
		return types.DataSource{ObjectType: types.DefaultObjectType, Identifier: ref.Name, Alias: ref.Alias}, nil
	}
}

// sourceSpec splits the single string argument of source() on its first
// dot. Without a dot the object type defaults to "table".
func sourceSpec(args []Expression) (string, string, error) {
	if len(args) != 1 {
		return "", "", invalidSource("source() function requires exactly one argument")
	}
	lit, ok := args[0].(*Literal)
	if !ok {
		return "", "", invalidSource("source() function argument must be a string literal")
	}
	spec, ok := lit.Value.(string)
	if !ok {
		return "", "", invalidSource("source() function argument must be a string literal")
	}
	if spec == "" {
		return "", "", invalidSource("Empty source specification")
	}
	if i := strings.IndexByte(spec, '.'); i >= 0 {
		return spec[:i], spec[i+1:], nil
	}
	return types.DefaultObjectType, spec, nil
}

// extractPredicates flattens a conjunction into predicates. Disjunctions
// cannot be expressed by the flat predicate list and are rejected.
func extractPredicates(expr Expression, out *[]types.Predicate) error {
	switch e := expr.(type) {
	case *ParenExpr:
		return extractPredicates(e.Expr, out)
	case *BinaryExpr:
		switch e.Operator {
		case "AND":
			if err := extractPredicates(e.Left, out); err != nil {
				return err
			}
			return extractPredicates(e.Right, out)
		case "OR":
			return unsupported("OR conditions are not supported; WHERE predicates are combined with AND only")
		}
		op, ok := comparisonOperators[e.Operator]
		if !ok {
			return unsupported(fmt.Sprintf("Operator %s not supported", e.Operator))
		}
		column, err := predicateColumn(e.Left)
		if err != nil {
			return err
		}
		value, err := predicateValue(e.Right)
		if err != nil {
			return err
		}
		*out = append(*out, types.Predicate{Column: column, Operator: op, Value: value})
		return nil
	case *IsNullExpr:
		column, err := predicateColumn(e.Expr)
		if err != nil {
			return err
		}
		op := types.OpIsNull
		if e.Not {
			op = types.OpIsNotNull
		}
		*out = append(*out, types.Predicate{Column: column, Operator: op, Value: types.NullPredicate()})
		return nil
	case *LikeExpr:
		if e.Not {
			return unsupported("NOT LIKE is not supported")
		}
		column, err := predicateColumn(e.Expr)
		if err != nil {
			return err
		}
		value, err := predicateValue(e.Pattern)
		if err != nil {
			return err
		}
		*out = append(*out, types.Predicate{Column: column, Operator: types.OpLike, Value: value})
		return nil
	case *InExpr:
		if e.Not {
			return unsupported("NOT IN is not supported")
		}
		column, err := predicateColumn(e.Expr)
		if err != nil {
			return err
		}
		list := make([]types.PredicateValue, 0, len(e.Values))
		for _, v := range e.Values {
			pv, err := predicateValue(v)
			if err != nil {
				return err
			}
			list = append(list, pv)
		}
		*out = append(*out, types.Predicate{Column: column, Operator: types.OpIn, Value: types.ListPredicate(list...)})
		return nil
	default:
		return unsupported(fmt.Sprintf("Unsupported WHERE expression: %s", expr.String()))
	}
}

var comparisonOperators = map[string]types.PredicateOperator{
	"=":  types.OpEqual,
	"!=": types.OpNotEqual,
	"<>": types.OpNotEqual,
	">":  types.OpGreaterThan,
	">=": types.OpGreaterThanOrEqual,
	"<":  types.OpLessThan,
	"<=": types.OpLessThanOrEqual,
}

func predicateColumn(expr Expression) (string, error) {
	if col, ok := expr.(*ColumnRef); ok {
		return col.String(), nil
	}
	return "", nerrors.NewParseError(nerrors.CodeInvalidSyntax, "Expected column identifier in predicate")
}

// predicateValue accepts a literal, a negated numeric literal, or a bare
// identifier (taken as a string).
func predicateValue(expr Expression) (types.PredicateValue, error) {
	switch e := expr.(type) {
	case *Literal:
		return literalValue(e.Value), nil
	case *ColumnRef:
		return types.StringPredicate(e.String()), nil
	case *UnaryExpr:
		if lit, ok := e.Operand.(*Literal); ok && e.Operator == "-" {
			switch v := lit.Value.(type) {
			case int64:
				return types.IntegerPredicate(-v), nil
			case float64:
				return types.NumberPredicate(-v), nil
			}
		}
	}
	return types.PredicateValue{}, unsupported("Complex expressions in predicates are not supported")
}

func literalValue(v interface{}) types.PredicateValue {
	switch x := v.(type) {
	case string:
		return types.StringPredicate(x)
	case int64:
		return types.IntegerPredicate(x)
	case float64:
		return types.NumberPredicate(x)
	case bool:
		return types.BooleanPredicate(x)
	default:
		return types.NullPredicate()
	}
}

func extractOrderBy(clauses []OrderByClause) (*types.OrderBy, error) {
	ordering := &types.OrderBy{Columns: make([]types.OrderColumn, 0, len(clauses))}
	for _, c := range clauses {
		col, ok := c.Expr.(*ColumnRef)
		if !ok {
			return nil, nerrors.NewParseError(nerrors.CodeInvalidSyntax,
				fmt.Sprintf("ORDER BY expects a column, got %s", c.Expr.String()))
		}
		dir := types.Ascending
		if c.Desc {
			dir = types.Descending
		}
		ordering.Columns = append(ordering.Columns, types.OrderColumn{Column: col.String(), Direction: dir})
	}
	return ordering, nil
}
