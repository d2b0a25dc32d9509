package store

import (
	"strings"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/store/migrate"
)

// ActiveWhere renders the WHERE clause selecting active records that match f,
// with bind parameters numbered for the dialect.
func ActiveWhere(f model.Filter, d migrate.Dialect) (string, []any) {
	clauses := []string{"archived = " + falseLiteral(d)}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.Replace(cond, "?", d.Placeholder(len(args)), 1))
	}
	if f.Project != nil {
		add("project = ?", *f.Project)
	}
	if f.After != nil {
		add("created_at >= ?", *f.After)
	}
	if f.Before != nil {
		add("created_at < ?", *f.Before)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func falseLiteral(d migrate.Dialect) string {
	if d == migrate.Postgres {
		return "FALSE"
	}
	return "0"
}
