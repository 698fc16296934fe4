package attendance

// Reconcile builds the working set for a roster: one record per roster uid,
// in roster order, Unmarked unless the draft carries a valid status for that
// uid. Draft uids that are not on the roster are dropped.
func Reconcile(roster []Student, draft []Record) []Record {
	cached := make(map[string]Status, len(draft))
	for _, r := range draft {
		if r.Status.Valid() {
			cached[r.UID] = r.Status
		}
	}

	seen := make(map[string]struct{}, len(roster))
	out := make([]Record, 0, len(roster))
	for _, s := range roster {
		if _, dup := seen[s.UID]; dup {
			continue
		}
		seen[s.UID] = struct{}{}
		status := Unmarked
		if st, ok := cached[s.UID]; ok {
			status = st
		}
		out = append(out, Record{UID: s.UID, Status: status})
	}
	return out
}
