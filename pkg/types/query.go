package types

import (
	"fmt"
	"strings"
)

// Operation is the statement kind of a query. Only Select is executed.
type Operation int

const (
	OperationSelect Operation = iota
	OperationInsert
	OperationUpdate
	OperationDelete
)

func (o Operation) String() string {
	switch o {
	case OperationSelect:
		return "SELECT"
	case OperationInsert:
		return "INSERT"
	case OperationUpdate:
		return "UPDATE"
	case OperationDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// DefaultObjectType is used for FROM items that name a plain table or a
// source('identifier') without a type prefix.
const DefaultObjectType = "table"

// DataSource addresses one backend object: source('ObjectType.Identifier').
type DataSource struct {
	ObjectType string `json:"object_type"`
	Identifier string `json:"identifier"`
	Alias      string `json:"alias,omitempty"`
}

// String renders the source in source() notation.
func (d DataSource) String() string {
	return fmt.Sprintf("%s.%s", d.ObjectType, d.Identifier)
}

// Column is a projected column. Name "*" selects every column; Source
// qualifies the column with a source alias or table name.
type Column struct {
	Name   string `json:"name"`
	Alias  string `json:"alias,omitempty"`
	Source string `json:"source,omitempty"`
}

// IsWildcard reports whether the column is * or alias.*.
func (c Column) IsWildcard() bool { return c.Name == "*" }

// OutputName is the name the column carries in a result.
func (c Column) OutputName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Name
}

func (c Column) String() string {
	name := c.Name
	if c.Source != "" {
		name = c.Source + "." + name
	}
	if c.Alias != "" {
		name += " AS " + c.Alias
	}
	return name
}

// PredicateOperator is the comparison a predicate applies.
type PredicateOperator int

const (
	OpEqual PredicateOperator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpLike
	OpIn
	OpIsNull
	OpIsNotNull
)

// String returns the SQL spelling of the operator.
func (o PredicateOperator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpLike:
		return "LIKE"
	case OpIn:
		return "IN"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "?"
	}
}

// IgnoresValue reports whether the operator ignores the predicate value.
func (o PredicateOperator) IgnoresValue() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// PredicateValueKind discriminates the variants of PredicateValue.
type PredicateValueKind int

const (
	PredString PredicateValueKind = iota
	PredNumber
	PredInteger
	PredBoolean
	PredNull
	PredList
)

// PredicateValue is the literal side of a predicate.
type PredicateValue struct {
	Kind PredicateValueKind `json:"kind"`
	Str  string             `json:"str,omitempty"`
	Num  float64            `json:"num,omitempty"`
	Int  int64              `json:"int,omitempty"`
	Bool bool               `json:"bool,omitempty"`
	List []PredicateValue   `json:"list,omitempty"`
}

func StringPredicate(s string) PredicateValue  { return PredicateValue{Kind: PredString, Str: s} }
func NumberPredicate(f float64) PredicateValue { return PredicateValue{Kind: PredNumber, Num: f} }
func IntegerPredicate(i int64) PredicateValue  { return PredicateValue{Kind: PredInteger, Int: i} }
func BooleanPredicate(b bool) PredicateValue   { return PredicateValue{Kind: PredBoolean, Bool: b} }
func NullPredicate() PredicateValue            { return PredicateValue{Kind: PredNull} }
func ListPredicate(vs ...PredicateValue) PredicateValue {
	return PredicateValue{Kind: PredList, List: vs}
}

// Value converts a scalar predicate literal into a result Value. Lists
// convert to Null; callers iterate List instead.
func (p PredicateValue) Value() Value {
	switch p.Kind {
	case PredString:
		return TextValue(p.Str)
	case PredNumber:
		return FloatValue(p.Num)
	case PredInteger:
		return IntegerValue(p.Int)
	case PredBoolean:
		return BooleanValue(p.Bool)
	default:
		return NullValue()
	}
}

// Interface returns the literal as a plain Go value suitable for a
// database/sql argument.
func (p PredicateValue) Interface() interface{} {
	switch p.Kind {
	case PredString:
		return p.Str
	case PredNumber:
		return p.Num
	case PredInteger:
		return p.Int
	case PredBoolean:
		return p.Bool
	case PredList:
		out := make([]interface{}, len(p.List))
		for i, v := range p.List {
			out[i] = v.Interface()
		}
		return out
	default:
		return nil
	}
}

func (p PredicateValue) String() string {
	switch p.Kind {
	case PredString:
		return "'" + strings.ReplaceAll(p.Str, "'", "''") + "'"
	case PredList:
		parts := make([]string, len(p.List))
		for i, v := range p.List {
			parts[i] = v.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case PredNull:
		return "NULL"
	default:
		return p.Value().String()
	}
}

// Predicate is one conjunct of a WHERE clause.
type Predicate struct {
	Column   string            `json:"column"`
	Operator PredicateOperator `json:"operator"`
	Value    PredicateValue    `json:"value"`
}

func (p Predicate) String() string {
	if p.Operator.IgnoresValue() {
		return fmt.Sprintf("%s %s", p.Column, p.Operator)
	}
	return fmt.Sprintf("%s %s %s", p.Column, p.Operator, p.Value)
}

// Direction is an ORDER BY direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// OrderColumn is one ORDER BY entry.
type OrderColumn struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// OrderBy is the ordering of a query; the first column is primary.
type OrderBy struct {
	Columns []OrderColumn `json:"columns"`
}

// Query is the backend-agnostic form of a parsed statement.
type Query struct {
	Operation   Operation    `json:"operation"`
	Sources     []DataSource `json:"sources"`
	Projections []Column     `json:"projections"`
	Predicates  []Predicate  `json:"predicates"`
	Ordering    *OrderBy     `json:"ordering,omitempty"`
	Limit       *uint64      `json:"limit,omitempty"`
}

// NewQuery returns an empty query for the given operation.
func NewQuery(op Operation) *Query {
	return &Query{Operation: op}
}

// String renders the query as normalized SQL, mostly for logs.
func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.Operation.String())
	sb.WriteString(" ")
	if len(q.Projections) == 0 {
		sb.WriteString("*")
	} else {
		cols := make([]string, len(q.Projections))
		for i, c := range q.Projections {
			cols[i] = c.String()
		}
		sb.WriteString(strings.Join(cols, ", "))
	}
	if len(q.Sources) > 0 {
		srcs := make([]string, len(q.Sources))
		for i, s := range q.Sources {
			srcs[i] = fmt.Sprintf("source('%s')", s)
			if s.Alias != "" {
				srcs[i] += " " + s.Alias
			}
		}
		sb.WriteString(" FROM ")
		sb.WriteString(strings.Join(srcs, ", "))
	}
	if len(q.Predicates) > 0 {
		preds := make([]string, len(q.Predicates))
		for i, p := range q.Predicates {
			preds[i] = p.String()
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(preds, " AND "))
	}
	if q.Ordering != nil && len(q.Ordering.Columns) > 0 {
		cols := make([]string, len(q.Ordering.Columns))
		for i, c := range q.Ordering.Columns {
			cols[i] = c.Column + " " + c.Direction.String()
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(cols, ", "))
	}
	if q.Limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *q.Limit)
	}
	return sb.String()
}
