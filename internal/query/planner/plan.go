package planner

import (
	"fmt"
	"strings"

	"github.com/nirv/nirv/pkg/types"
)

// Node is one operation in an execution plan. TableScanNode is always the
// leaf; every other node owns exactly one child.
type Node interface {
	// Child returns the input node, or nil for a leaf.
	Child() Node
	String() string
}

// TableScanNode reads rows from the connector that serves Source.
type TableScanNode struct {
	Source      types.DataSource
	Projections []types.Column
	Predicates  []types.Predicate
}

func (n *TableScanNode) Child() Node { return nil }

func (n *TableScanNode) String() string {
	cols := make([]string, len(n.Projections))
	for i, c := range n.Projections {
		cols[i] = c.String()
	}
	s := fmt.Sprintf("TableScan(%s, [%s]", n.Source, strings.Join(cols, ", "))
	if len(n.Predicates) > 0 {
		preds := make([]string, len(n.Predicates))
		for i, p := range n.Predicates {
			preds[i] = p.String()
		}
		s += ", " + strings.Join(preds, " AND ")
	}
	return s + ")"
}

// SortNode orders the rows of Input.
type SortNode struct {
	Ordering types.OrderBy
	Input    Node
}

func (n *SortNode) Child() Node { return n.Input }

func (n *SortNode) String() string {
	cols := make([]string, len(n.Ordering.Columns))
	for i, c := range n.Ordering.Columns {
		cols[i] = c.Column + " " + c.Direction.String()
	}
	return fmt.Sprintf("Sort(%s)", strings.Join(cols, ", "))
}

// LimitNode keeps the first Count rows of Input.
type LimitNode struct {
	Count uint64
	Input Node
}

func (n *LimitNode) Child() Node { return n.Input }

func (n *LimitNode) String() string { return fmt.Sprintf("Limit(%d)", n.Count) }

// ProjectionNode narrows and renames the columns of Input.
type ProjectionNode struct {
	Columns []types.Column
	Input   Node
}

func (n *ProjectionNode) Child() Node { return n.Input }

func (n *ProjectionNode) String() string {
	cols := make([]string, len(n.Columns))
	for i, c := range n.Columns {
		cols[i] = c.String()
	}
	return fmt.Sprintf("Projection(%s)", strings.Join(cols, ", "))
}

// ExecutionPlan is a singly-rooted chain of nodes plus an advisory cost.
type ExecutionPlan struct {
	Root          Node
	EstimatedCost float64
}

// IsEmpty reports whether the plan has no nodes.
func (p *ExecutionPlan) IsEmpty() bool {
	return p == nil || p.Root == nil
}

// Nodes returns the plan from root to leaf.
func (p *ExecutionPlan) Nodes() []Node {
	var nodes []Node
	if p == nil {
		return nodes
	}
	for n := p.Root; n != nil; n = n.Child() {
		nodes = append(nodes, n)
	}
	return nodes
}

// Scan returns the leaf of the plan, or nil for an empty plan.
func (p *ExecutionPlan) Scan() *TableScanNode {
	if p == nil {
		return nil
	}
	return Leaf(p.Root)
}

// Leaf follows n down to its table scan.
func Leaf(n Node) *TableScanNode {
	for n != nil {
		if scan, ok := n.(*TableScanNode); ok {
			return scan
		}
		n = n.Child()
	}
	return nil
}

// Explain renders the plan as an indented tree, root first.
func (p *ExecutionPlan) Explain() string {
	var sb strings.Builder
	for depth, n := range p.Nodes() {
		sb.WriteString(strings.Repeat("  ", depth))
		if depth > 0 {
			sb.WriteString("-> ")
		}
		sb.WriteString(n.String())
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "estimated cost: %.2f\n", p.EstimatedCost)
	return sb.String()
}
