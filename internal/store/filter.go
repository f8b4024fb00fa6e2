package store

import "strings"

// where accumulates parameterized equality predicates.
// Values are always bound, never interpolated.
type where struct {
	conds []string
	args  []any
}

// eq adds "column = ?" when value is non-empty.
func (w *where) eq(column, value string) {
	if value == "" {
		return
	}
	w.conds = append(w.conds, column+" = ?")
	w.args = append(w.args, value)
}

// neq adds "column != ?".
func (w *where) neq(column, value string) {
	w.conds = append(w.conds, column+" != ?")
	w.args = append(w.args, value)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Page bounds a listing. Limit <= 0 means DefaultPageLimit.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPageLimit applies when a caller does not bound a listing.
const DefaultPageLimit = 20

// MaxPageLimit caps any single listing.
const MaxPageLimit = 200

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageLimit
	case p.Limit > MaxPageLimit:
		return MaxPageLimit
	}
	return p.Limit
}

func (p Page) offset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}
