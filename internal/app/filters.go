package app

import "friendly_eats/internal/domain"

// ApplyQueryFilters narrows q by every non-empty filter and adds the listing
// order. Equality constraints are added in category, city, price order, which
// is the order the composite indexes are declared in.
func ApplyQueryFilters[Q domain.QueryBuilder[Q]](q Q, f domain.Filters) (Q, error) {
	if f.Category != "" {
		q = q.Where(domain.FieldCategory, f.Category)
	}
	if f.City != "" {
		q = q.Where(domain.FieldCity, f.City)
	}
	if f.Price != "" {
		tier, err := domain.ParsePriceTier(f.Price)
		if err != nil {
			return q, err
		}
		q = q.Where(domain.FieldPrice, tier)
	}
	switch f.Sort {
	case "", domain.SortRating:
		q = q.OrderBy(domain.FieldAvgRating, domain.Desc)
	case domain.SortReview:
		q = q.OrderBy(domain.FieldNumRatings, domain.Desc)
	}
	return q, nil
}
