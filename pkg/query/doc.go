// Package query normalizes and validates market-data request parameters.
//
// Symbols are uppercased and restricted to 1-12 ASCII letters or digits.
// Aggregate parameters are clamped rather than rejected, except for the
// timespan, which must be one of minute, hour or day:
//
//	q, err := query.ParseAggs(r.URL.Query())
//	if err != nil {
//	    var verr *query.ValidationError
//	    if errors.As(err, &verr) { /* 400 verr.Code */ }
//	}
//	from, to := q.Range(time.Now())
package query
