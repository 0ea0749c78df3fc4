package stream

// Combine pairs every record of the primary channel with the single
// record of a run-scoped secondary channel (broadcast fan-out). Primary
// records arriving before the secondary has emitted are buffered and
// flushed in order once it does. If the secondary closes without ever
// emitting — its producer failed — nothing is forwarded, and downstream
// consumers see an empty, closed channel.
//
// Only the secondary's first record is used; a broadcast channel carries
// at most one record by construction.
func Combine[A, B, C any](primary *Channel[A], secondary *Channel[B], name string, merge func(A, B) C) *Channel[C] {
	out := New[C](name)

	var (
		pending     []A
		second      B
		haveSecond  bool
		primaryDone bool
		secondDone  bool
	)

	maybeClose := func() {
		if primaryDone && (haveSecond || secondDone) && !out.closed {
			out.Close()
		}
	}

	primary.Each(func(a A) {
		if haveSecond {
			out.Publish(merge(a, second))
			return
		}
		pending = append(pending, a)
	})
	secondary.Each(func(b B) {
		if haveSecond {
			return
		}
		second, haveSecond = b, true
		for _, a := range pending {
			out.Publish(merge(a, second))
		}
		pending = nil
		maybeClose()
	})

	primary.OnClose(func() {
		primaryDone = true
		maybeClose()
	})
	secondary.OnClose(func() {
		secondDone = true
		if !haveSecond {
			pending = nil
		}
		maybeClose()
	})

	return out
}
