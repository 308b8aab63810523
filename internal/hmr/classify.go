package hmr

// Equivalence decides whether two definitions of the same module are the same.
type Equivalence func(a, b Definition) bool

// SameVersion compares the version tokens supplied by the build step.
func SameVersion(a, b Definition) bool {
	return a.Version == b.Version
}

// Changes is the result of comparing two definition tables.
type Changes struct {
	Changed []ModuleID
	Added   []ModuleID
	Removed []ModuleID
}

// Empty reports a no-op: nothing was changed, added or removed.
func (c Changes) Empty() bool {
	return len(c.Changed) == 0 && len(c.Added) == 0 && len(c.Removed) == 0
}

// Classify diffs the old and new definition tables. Output slices are sorted.
func Classify(old, next Definitions, eq Equivalence) Changes {
	if eq == nil {
		eq = SameVersion
	}

	var c Changes
	for _, id := range old.IDs() {
		prev := old[id]
		cur, ok := next[id]
		switch {
		case !ok:
			c.Removed = append(c.Removed, id)
		case !eq(prev, cur):
			c.Changed = append(c.Changed, id)
		}
	}
	for _, id := range next.IDs() {
		if _, ok := old[id]; !ok {
			c.Added = append(c.Added, id)
		}
	}
	return c
}
