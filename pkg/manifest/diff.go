package manifest

// Diff compares newM against oldM and returns the parameters added in
// newM, removed from oldM, and present in both but with a different
// TensorMetadata.Hash. diff(M, M) always returns three empty maps.
func Diff(newM, oldM Manifest) (added, removed, modified Manifest) {
	added, removed, modified = New(), New(), New()
	for name, p := range newM {
		old, existed := oldM[name]
		if !existed {
			added[name] = p.Clone()
			continue
		}
		if !p.Equal(old) {
			modified[name] = p.Clone()
		}
	}
	for name, p := range oldM {
		if _, stillPresent := newM[name]; !stillPresent {
			removed[name] = p.Clone()
		}
	}
	return added, removed, modified
}

// Summary renders a Manifest's parameter names for display, e.g. in diff
// output, sorted and "/"-joined.
func Summary(m Manifest) []string {
	names := m.Names()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.String()
	}
	return out
}
