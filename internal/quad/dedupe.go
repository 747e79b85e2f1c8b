package quad

// Dedupe keeps the first quad of every member set, preserving order.
func Dedupe(quads []Quad) []Quad {
	seen := make(map[Key]struct{}, len(quads))
	out := make([]Quad, 0, len(quads))
	for _, q := range quads {
		k := q.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, q)
	}
	return out
}

// Merge appends the quads of batch whose member sets are not already in
// existing and returns the extended list and the number of quads added.
// existing is assumed to be free of duplicates.
func Merge(existing, batch []Quad) ([]Quad, int) {
	seen := make(map[Key]struct{}, len(existing)+len(batch))
	for _, q := range existing {
		seen[q.Key()] = struct{}{}
	}
	added := 0
	for _, q := range batch {
		k := q.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		existing = append(existing, q)
		added++
	}
	return existing, added
}
