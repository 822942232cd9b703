// internal/deltastore/reconcile.go
package deltastore

import "slices"

// BranchDelta classifies the branches of one repository after a scan.
// Revived is the subset of Updated that was inactive before the scan.
type BranchDelta struct {
	New     []string
	Updated []string
	Revived []string
	Gone    []string
}

// Reconcile computes the liveness transition from the stored branch set to the observed one.
// known maps every stored branch name to its liveness before the scan. Gone holds every stored
// branch that was not observed, whether it was live before or had already gone.
func Reconcile(known map[string]bool, observed []string) BranchDelta {
	var d BranchDelta
	seen := make(map[string]struct{}, len(observed))
	for _, name := range observed {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		active, ok := known[name]
		switch {
		case !ok:
			d.New = append(d.New, name)
		case !active:
			d.Updated = append(d.Updated, name)
			d.Revived = append(d.Revived, name)
		default:
			d.Updated = append(d.Updated, name)
		}
	}
	for name := range known {
		if _, ok := seen[name]; !ok {
			d.Gone = append(d.Gone, name)
		}
	}

	slices.Sort(d.New)
	slices.Sort(d.Updated)
	slices.Sort(d.Revived)
	slices.Sort(d.Gone)
	return d
}
