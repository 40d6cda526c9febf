package complaints

import "time"

// Slice selects the records whose received date falls inside the half-open
// window [from, to). Single linear pass, input order preserved, no copies of
// record data beyond the returned slice. Pure: identical inputs yield
// identical output, and the result is always a subset of the input.
func Slice(records []Record, from, to time.Time) []Record {
	from, to = Day(from), Day(to)

	out := make([]Record, 0, len(records))

	for _, rec := range records {
		d := Day(rec.Received)

		if d.Before(from) || !d.Before(to) {
			continue
		}

		out = append(out, rec)
	}

	return out
}

// SliceRange is Slice over an inclusive DateRange.
func SliceRange(records []Record, r DateRange) []Record {
	if r.IsEmpty() {
		return []Record{}
	}

	return Slice(records, r.Start, r.End.AddDate(0, 0, 1))
}
