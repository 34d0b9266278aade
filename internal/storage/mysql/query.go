package mysql

import (
	"fmt"
	"strings"

	"friendly_eats/internal/domain"
)

// columns maps queryable entity fields to SQL columns. Anything else is
// rejected so caller input never reaches the statement text.
var columns = map[string]string{
	domain.FieldCategory:   "category",
	domain.FieldCity:       "city",
	domain.FieldPrice:      "price",
	domain.FieldAvgRating:  "avg_rating",
	domain.FieldNumRatings: "num_ratings",
}

// buildListSQL renders q as a SELECT over entities. The id tie-breaker keeps
// the order stable between reads.
func buildListSQL(q domain.Query) (string, []any, error) {
	var b strings.Builder
	b.WriteString(listEntitiesSQL)

	args := make([]any, 0, len(q.Constraints))
	for i, c := range q.Constraints {
		col, ok := columns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidFilter, c.Field)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(col)
		b.WriteString(" = ?")
		args = append(args, c.Value)
	}

	b.WriteString(" ORDER BY ")
	for _, o := range q.Orders {
		col, ok := columns[o.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidFilter, o.Field)
		}
		dir := "ASC"
		if o.Dir == domain.Desc {
			dir = "DESC"
		}
		b.WriteString(col)
		b.WriteString(" ")
		b.WriteString(dir)
		b.WriteString(", ")
	}
	b.WriteString("id ASC")
	return b.String(), args, nil
}
