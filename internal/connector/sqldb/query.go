package sqldb

import (
	"fmt"
	"strconv"
	"strings"

	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

// BuildSelect renders q as a parameterized SELECT for dialect d.
//
// Predicates are pushed down. The statement always selects every column:
// ordering keys and qualified projections are resolved by the executor
// against the full row. A valid "limit" parameter becomes a LIMIT clause.
func BuildSelect(d Dialect, q *types.Query, params map[string]string) (string, []interface{}, error) {
	if q == nil || q.Operation != types.OperationSelect {
		op := "unknown"
		if q != nil {
			op = q.Operation.String()
		}
		return "", nil, nerrors.NewConnectorError(nerrors.CodeUnsupportedOperation,
			fmt.Sprintf("Operation %s not supported by %s connector", op, d.Name), nil)
	}
	if len(q.Sources) == 0 {
		return "", nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
			"No data source specified in query", nil)
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(QuoteQualified(q.Sources[0].Identifier))

	var args []interface{}
	if len(q.Predicates) > 0 {
		conds := make([]string, 0, len(q.Predicates))
		for _, p := range q.Predicates {
			cond, condArgs, err := buildPredicate(d, p, len(args))
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, cond)
			args = append(args, condArgs...)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if raw, ok := params["limit"]; ok {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			sb.WriteString(" LIMIT ")
			sb.WriteString(strconv.FormatUint(n, 10))
		}
	}
	return sb.String(), args, nil
}

// buildPredicate renders one condition. offset is the number of bind
// parameters already used.
func buildPredicate(d Dialect, p types.Predicate, offset int) (string, []interface{}, error) {
	col := p.Column
	if dot := strings.LastIndexByte(col, '.'); dot >= 0 {
		col = col[dot+1:]
	}
	col = QuoteIdent(col)

	switch p.Operator {
	case types.OpIsNull:
		return col + " IS NULL", nil, nil
	case types.OpIsNotNull:
		return col + " IS NOT NULL", nil, nil
	case types.OpIn:
		if p.Value.Kind != types.PredList || len(p.Value.List) == 0 {
			return "", nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
				fmt.Sprintf("IN on %s requires a non-empty list", p.Column), nil)
		}
		marks := make([]string, len(p.Value.List))
		args := make([]interface{}, len(p.Value.List))
		for i, item := range p.Value.List {
			marks[i] = d.Placeholder(offset + i + 1)
			args[i] = item.Interface()
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")), args, nil
	}

	if p.Value.Kind == types.PredNull {
		switch p.Operator {
		case types.OpEqual:
			return col + " IS NULL", nil, nil
		case types.OpNotEqual:
			return col + " IS NOT NULL", nil, nil
		}
	}
	return fmt.Sprintf("%s %s %s", col, p.Operator, d.Placeholder(offset+1)), []interface{}{p.Value.Interface()}, nil
}
