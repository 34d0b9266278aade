package mysql

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"friendly_eats/internal/domain"
)

func TestBuildListSQL(t *testing.T) {
	cases := []struct {
		name     string
		q        domain.Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "no constraints",
			q:        domain.Query{},
			wantSQL:  listEntitiesSQL + " ORDER BY id ASC",
			wantArgs: []any{},
		},
		{
			name: "filters and rating order",
			q: domain.Query{}.
				Where(domain.FieldCategory, "Italian").
				Where(domain.FieldCity, "Austin").
				Where(domain.FieldPrice, 2).
				OrderBy(domain.FieldAvgRating, domain.Desc),
			wantSQL:  listEntitiesSQL + " WHERE category = ? AND city = ? AND price = ? ORDER BY avg_rating DESC, id ASC",
			wantArgs: []any{"Italian", "Austin", 2},
		},
		{
			name:     "review count order",
			q:        domain.Query{}.OrderBy(domain.FieldNumRatings, domain.Desc),
			wantSQL:  listEntitiesSQL + " ORDER BY num_ratings DESC, id ASC",
			wantArgs: []any{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotSQL, gotArgs, err := buildListSQL(tc.q)
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if gotSQL != tc.wantSQL {
				t.Fatalf("sql:\n got %q\nwant %q", gotSQL, tc.wantSQL)
			}
			if diff := cmp.Diff(tc.wantArgs, gotArgs); diff != "" {
				t.Fatalf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildListSQL_RejectsUnknownField(t *testing.T) {
	_, _, err := buildListSQL(domain.Query{}.Where("name; DROP TABLE entities", "x"))
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	_, _, err = buildListSQL(domain.Query{}.OrderBy("photo", domain.Asc))
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter for order, got %v", err)
	}
}
