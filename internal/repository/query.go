package repository

// Sort directions. Anything other than exactly ASC sorts descending.
const (
	ASC  = "ASC"
	DESC = "DESC"
)

// Condition is one WHERE term. A slice Value expands to a parenthesized
// list, e.g. Condition{"id", "IN", []int64{1, 2}} -> id IN ($1, $2).
// IS and IS NOT take a nil Value and render IS [NOT] NULL.
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Where builds a Condition.
func Where(field, operator string, value any) Condition {
	return Condition{Field: field, Operator: operator, Value: value}
}

// Order is one ORDER BY term. Terms apply in slice order.
type Order struct {
	Field     string
	Direction string
}

// Query describes a collection read. Zero Limit and Offset are omitted.
// Empty Fields selects every column.
type Query struct {
	Fields []string
	Where  []Condition
	Order  []Order
	Limit  int
	Offset int
}
