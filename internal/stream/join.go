package stream

// JoinStats records the keys a join saw on only one side. A miss is not an
// error; the downstream instance for that key is simply never created. The
// run summary reports misses so they stay distinguishable from failures.
type JoinStats struct {
	leftSeen  map[string]bool
	rightSeen map[string]bool
}

// Misses returns the keys that appeared on exactly one side, valid once
// both inputs are closed.
func (s *JoinStats) Misses() []string {
	var out []string
	for k := range s.leftSeen {
		if !s.rightSeen[k] {
			out = append(out, k)
		}
	}
	for k := range s.rightSeen {
		if !s.leftSeen[k] {
			out = append(out, k)
		}
	}
	return out
}

// Join derives the inner join of two keyed channels. For every key present
// on both sides, merge is called once per record pairing, in arrival
// order; a key present on only one side produces no output at all. The
// joined channel closes when both inputs have closed.
//
// In this pipeline each side carries at most one record per key, so the
// pairing is one-to-one in practice; the buffering still handles either
// side arriving first.
func Join[A, B, C any](
	left *Channel[A], right *Channel[B], name string,
	keyA func(A) string, keyB func(B) string,
	merge func(A, B) C,
) (*Channel[C], *JoinStats) {
	out := New[C](name)
	stats := &JoinStats{leftSeen: map[string]bool{}, rightSeen: map[string]bool{}}

	pendingA := map[string][]A{}
	pendingB := map[string][]B{}
	closedSides := 0

	left.Each(func(a A) {
		k := keyA(a)
		stats.leftSeen[k] = true
		for _, b := range pendingB[k] {
			out.Publish(merge(a, b))
		}
		pendingA[k] = append(pendingA[k], a)
	})
	right.Each(func(b B) {
		k := keyB(b)
		stats.rightSeen[k] = true
		for _, a := range pendingA[k] {
			out.Publish(merge(a, b))
		}
		pendingB[k] = append(pendingB[k], b)
	})

	closeSide := func() {
		closedSides++
		if closedSides == 2 {
			out.Close()
		}
	}
	left.OnClose(closeSide)
	right.OnClose(closeSide)

	return out, stats
}
