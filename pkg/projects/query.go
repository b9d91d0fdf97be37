package projects

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/taskboard/pkg/rbac"
)

// whereClause accumulates AND-ed conditions with sequential $n
// placeholders. Conditions must be added in the order they appear in the
// final statement.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) next() int {
	return len(w.args) + 1
}

// predicate appends a visibility predicate; empty predicates add nothing
func (w *whereClause) predicate(p rbac.Predicate) {
	if p.Empty() {
		return
	}
	w.conds = append(w.conds, "("+p.SQL+")")
	w.args = append(w.args, p.Args...)
}

// add appends cond, whose single %d verb is replaced by the next placeholder
func (w *whereClause) add(cond string, arg interface{}) {
	w.conds = append(w.conds, fmt.Sprintf(cond, w.next()))
	w.args = append(w.args, arg)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page returns the LIMIT/OFFSET suffix and the args including them
func (w *whereClause) page(limit, offset int) (string, []interface{}) {
	n := w.next()
	args := append(append([]interface{}(nil), w.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n, n+1), args
}

func likePattern(search string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(search))
	return "%" + escaped + "%"
}
