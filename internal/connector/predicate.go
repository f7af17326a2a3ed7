package connector

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/nirv/nirv/pkg/types"
)

// ResolveColumn finds a column by exact name, then by the unqualified
// part of a qualified name such as "u.age". It returns -1 when absent.
func ResolveColumn(columns []types.ColumnMetadata, name string) int {
	for i, c := range columns {
		if c.Name == name {
			return i
		}
	}
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		bare := name[dot+1:]
		for i, c := range columns {
			if c.Name == bare {
				return i
			}
		}
	}
	return -1
}

// FilterRows keeps the rows that satisfy every predicate. A predicate on
// a column the rows do not have matches nothing.
func FilterRows(columns []types.ColumnMetadata, rows []types.Row, preds []types.Predicate) []types.Row {
	if len(preds) == 0 {
		return rows
	}

	indices := make([]int, len(preds))
	for i, p := range preds {
		indices[i] = ResolveColumn(columns, p.Column)
	}

	out := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		if rowMatches(row, preds, indices) {
			out = append(out, row)
		}
	}
	return out
}

func rowMatches(row types.Row, preds []types.Predicate, indices []int) bool {
	for i, p := range preds {
		idx := indices[i]
		if idx < 0 || idx >= len(row) {
			return false
		}
		if !Evaluate(row[idx], p.Operator, p.Value) {
			return false
		}
	}
	return true
}

// Evaluate applies one predicate operator to a value. IS NULL and
// IS NOT NULL never look at the literal.
func Evaluate(v types.Value, op types.PredicateOperator, lit types.PredicateValue) bool {
	switch op {
	case types.OpIsNull:
		return v.IsNull()
	case types.OpIsNotNull:
		return !v.IsNull()
	case types.OpEqual:
		return equals(v, lit)
	case types.OpNotEqual:
		return !equals(v, lit)
	case types.OpGreaterThan:
		c, ok := compareLiteral(v, lit)
		return ok && c > 0
	case types.OpGreaterThanOrEqual:
		c, ok := compareLiteral(v, lit)
		return ok && c >= 0
	case types.OpLessThan:
		c, ok := compareLiteral(v, lit)
		return ok && c < 0
	case types.OpLessThanOrEqual:
		c, ok := compareLiteral(v, lit)
		return ok && c <= 0
	case types.OpLike:
		if v.IsNull() || lit.Kind != types.PredString {
			return false
		}
		return MatchLike(v.String(), lit.Str)
	case types.OpIn:
		if lit.Kind != types.PredList {
			return false
		}
		for _, item := range lit.List {
			if equals(v, item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func equals(v types.Value, lit types.PredicateValue) bool {
	if lit.Kind == types.PredNull {
		return v.IsNull()
	}
	c, ok := compareLiteral(v, lit)
	return ok && c == 0
}

// compareLiteral orders a value against a scalar literal. ok is false
// when the two are not comparable: null, lists, or mismatched families.
func compareLiteral(v types.Value, lit types.PredicateValue) (int, bool) {
	if v.IsNull() {
		return 0, false
	}
	switch lit.Kind {
	case types.PredInteger, types.PredNumber:
		f, ok := v.AsFloat()
		if !ok && v.Kind() == types.KindText {
			// Numeric strings compare as numbers.
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Text()), 64)
			f, ok = parsed, err == nil
		}
		if !ok {
			return 0, false
		}
		want, _ := lit.Value().AsFloat()
		if math.Abs(f-want) < 1e-9 {
			return 0, true
		}
		if f < want {
			return -1, true
		}
		return 1, true
	case types.PredBoolean:
		if v.Kind() != types.KindBoolean {
			return 0, false
		}
		return types.Compare(v, lit.Value()), true
	case types.PredString:
		switch v.Kind() {
		case types.KindText, types.KindDate, types.KindDateTime, types.KindJSON:
			return strings.Compare(v.Text(), lit.Str), true
		}
		return 0, false
	default:
		return 0, false
	}
}

var likeCache sync.Map // pattern -> *regexp.Regexp

// MatchLike reports whether s matches a SQL LIKE pattern, where % matches
// any run of characters and _ exactly one. The match is anchored and
// case-sensitive.
func MatchLike(s, pattern string) bool {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(s)
	}

	var sb strings.Builder
	sb.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")

	re := regexp.MustCompile(sb.String())
	likeCache.Store(pattern, re)
	return re.MatchString(s)
}

// ApplyLimit truncates rows to the "limit" connection parameter when one
// is present and valid.
func ApplyLimit(rows []types.Row, params map[string]string) []types.Row {
	raw, ok := params["limit"]
	if !ok {
		return rows
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n >= uint64(len(rows)) {
		return rows
	}
	return rows[:n]
}

// InferColumns builds column metadata from the kinds in the first row.
// Columns without a name are called column_<i>.
func InferColumns(names []string, first types.Row) []types.ColumnMetadata {
	cols := make([]types.ColumnMetadata, len(first))
	for i, v := range first {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		if name == "" {
			name = DefaultColumnName(i)
		}
		cols[i] = types.ColumnMetadata{Name: name, DataType: v.DataType(), Nullable: true}
	}
	return cols
}

// DefaultColumnName is the name given to an unnamed result column.
func DefaultColumnName(i int) string {
	return "column_" + strconv.Itoa(i)
}
