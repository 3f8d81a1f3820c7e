package zone

// WindowStats are the scan statistics of one token inside one zone window.
type WindowStats struct {
	Scans  int
	Groups int
}

// Stats maps every zone to the statistics of its window. Missing zones read
// as zero.
type Stats map[Zone]WindowStats

// Classify returns the zones whose criteria are met. Each zone is evaluated
// on its own and prior membership is not consulted.
func Classify(stats Stats, r *Registry) Set {
	var out Set
	for _, z := range All {
		if r.Criteria(z).Satisfied(stats[z]) {
			out = out.Add(z)
		}
	}
	return out
}
