// Package query is the filter vocabulary shared by the registry ports and
// change-feed subscriptions: equality, set membership, and OR of AND-groups.
// The same filter value is evaluated in-process by the in-memory registry
// and translated to SQL by the Postgres adapter.
package query

type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

type Cond struct {
	Field  string `json:"field"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}

func In(field string, values ...any) Cond {
	return Cond{Field: field, Op: OpIn, Values: values}
}

// Group is a conjunction: every cond must hold.
type Group []Cond

// Filter is a disjunction of groups. An empty filter matches everything.
type Filter struct {
	Groups []Group `json:"groups,omitempty"`
}

// Where starts a filter with a single AND-group.
func Where(conds ...Cond) Filter {
	return Filter{Groups: []Group{conds}}
}

// OrWhere appends another AND-group to the disjunction.
func (f Filter) OrWhere(conds ...Cond) Filter {
	f.Groups = append(f.Groups, conds)
	return f
}

func (f Filter) Empty() bool {
	return len(f.Groups) == 0
}

// Match evaluates the filter against a row exposed through a field lookup.
func (f Filter) Match(field func(string) any) bool {
	if f.Empty() {
		return true
	}
	for _, g := range f.Groups {
		if g.match(field) {
			return true
		}
	}
	return false
}

func (g Group) match(field func(string) any) bool {
	for _, c := range g {
		if !c.match(field(c.Field)) {
			return false
		}
	}
	return true
}

func (c Cond) match(got any) bool {
	switch c.Op {
	case OpEq:
		return got == c.Value
	case OpIn:
		for _, v := range c.Values {
			if got == v {
				return true
			}
		}
		return false
	default:
		return false
	}
}
