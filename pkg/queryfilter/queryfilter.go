// Package queryfilter compiles a small condition algebra (equality,
// ordering, set membership, string matching, null checks, and boolean
// composition) into parameterized SQL, shared by every read-model query
// type in internal/readmodel.
package queryfilter

import (
	"fmt"
	"strings"
)

// Op is a single-column comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
	OpNotIn
	OpLike
	OpILike
	OpStartsWith
	OpEndsWith
	OpContains
	OpIsNull
)

// Cond is a leaf condition, built by the Eq/Neq/... constructors below.
type Cond struct {
	column string
	op     Op
	value  any
}

func Eq(column string, value any) Cond         { return Cond{column, OpEq, value} }
func Neq(column string, value any) Cond        { return Cond{column, OpNeq, value} }
func Lt(column string, value any) Cond         { return Cond{column, OpLt, value} }
func Lte(column string, value any) Cond        { return Cond{column, OpLte, value} }
func Gt(column string, value any) Cond         { return Cond{column, OpGt, value} }
func Gte(column string, value any) Cond        { return Cond{column, OpGte, value} }
func In(column string, values any) Cond        { return Cond{column, OpIn, values} }
func NotIn(column string, values any) Cond     { return Cond{column, OpNotIn, values} }
func Like(column, pattern string) Cond         { return Cond{column, OpLike, pattern} }
func ILike(column, pattern string) Cond        { return Cond{column, OpILike, pattern} }
func StartsWith(column, prefix string) Cond    { return Cond{column, OpStartsWith, prefix} }
func EndsWith(column, suffix string) Cond      { return Cond{column, OpEndsWith, suffix} }
func Contains(column, substr string) Cond      { return Cond{column, OpContains, substr} }
func IsNull(column string) Cond                { return Cond{column, OpIsNull, nil} }

// Expr is any node in the condition algebra: a leaf Cond or a boolean
// composition of other Exprs.
type Expr interface {
	render(argIdx *int) (string, []any)
}

func (c Cond) render(argIdx *int) (string, []any) {
	switch c.op {
	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", c.column), nil
	case OpIn:
		s := fmt.Sprintf("%s = ANY($%d)", c.column, *argIdx)
		*argIdx++
		return s, []any{c.value}
	case OpNotIn:
		s := fmt.Sprintf("NOT (%s = ANY($%d))", c.column, *argIdx)
		*argIdx++
		return s, []any{c.value}
	case OpLike:
		s := fmt.Sprintf("%s LIKE $%d", c.column, *argIdx)
		*argIdx++
		return s, []any{c.value}
	case OpILike:
		s := fmt.Sprintf("%s ILIKE $%d", c.column, *argIdx)
		*argIdx++
		return s, []any{c.value}
	case OpStartsWith:
		s := fmt.Sprintf("%s ILIKE $%d", c.column, *argIdx)
		*argIdx++
		return s, []any{fmt.Sprintf("%s%%", escapeLike(c.value.(string)))}
	case OpEndsWith:
		s := fmt.Sprintf("%s ILIKE $%d", c.column, *argIdx)
		*argIdx++
		return s, []any{fmt.Sprintf("%%%s", escapeLike(c.value.(string)))}
	case OpContains:
		s := fmt.Sprintf("%s ILIKE $%d", c.column, *argIdx)
		*argIdx++
		return s, []any{fmt.Sprintf("%%%s%%", escapeLike(c.value.(string)))}
	default:
		sym := map[Op]string{OpEq: "=", OpNeq: "<>", OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">="}[c.op]
		s := fmt.Sprintf("%s %s $%d", c.column, sym, *argIdx)
		*argIdx++
		return s, []any{c.value}
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type boolExpr struct {
	op       string // AND | OR | NOT
	children []Expr
}

func (b boolExpr) render(argIdx *int) (string, []any) {
	if b.op == "NOT" {
		s, args := b.children[0].render(argIdx)
		return fmt.Sprintf("NOT (%s)", s), args
	}
	var parts []string
	var args []any
	for _, c := range b.children {
		s, cargs := c.render(argIdx)
		parts = append(parts, "("+s+")")
		args = append(args, cargs...)
	}
	return strings.Join(parts, " "+b.op+" "), args
}

// And combines expressions with AND.
func And(exprs ...Expr) Expr { return boolExpr{op: "AND", children: exprs} }

// Or combines expressions with OR.
func Or(exprs ...Expr) Expr { return boolExpr{op: "OR", children: exprs} }

// Not negates an expression.
func Not(expr Expr) Expr { return boolExpr{op: "NOT", children: []Expr{expr}} }

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a compiled read-model query: a filter expression plus
// ordering and pagination, clamped to sane limits before it reaches SQL.
type Query struct {
	Filter Expr
	Order  []Order
	Limit  int
	Offset int
}

// MaxLimit is the hard ceiling every read-model query clamps to,
// regardless of what the caller requests.
const MaxLimit = 1000

// Compile renders q into a "WHERE ... ORDER BY ... LIMIT ... OFFSET ..."
// SQL fragment (omitting clauses that don't apply) plus its positional
// arguments, starting placeholders at argStart (so callers can prepend
// their own fixed conditions, e.g. instance/org scoping).
func Compile(q Query, argStart int) (string, []any) {
	var sb strings.Builder
	var args []any
	argIdx := argStart

	if q.Filter != nil {
		where, fargs := q.Filter.render(&argIdx)
		sb.WriteString("WHERE ")
		sb.WriteString(where)
		args = append(args, fargs...)
	}

	if len(q.Order) > 0 {
		var cols []string
		for _, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			cols = append(cols, fmt.Sprintf("%s %s", o.Column, dir))
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("ORDER BY " + strings.Join(cols, ", "))
	}

	limit := q.Limit
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	if sb.Len() > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString(fmt.Sprintf("LIMIT %d", limit))

	if q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", q.Offset))
	}

	return sb.String(), args
}
