// Package stream implements the typed data channels that connect task
// ports: push-based, single-writer streams with map, take, join and
// collect combinators.
//
// Channels are deliberately not goroutine-safe. The run has exactly one
// point of serialization, the scheduler's event loop, and every publish
// happens from inside it. Combinators subscribe during the wiring phase,
// before the first record is published; records are delivered to every
// consumer synchronously and in publish order, which is what makes
// Take(n) deterministic for dev-mode truncation.
package stream

import "fmt"

// Channel is an ordered stream of records. A channel is either broadcast
// (every consumer sees every record) or, by convention of its payload,
// keyed; the combinators below never mix the two on one channel.
type Channel[T any] struct {
	name    string
	subs    []func(T)
	closers []func()
	count   int
	closed  bool
}

// New returns an open, empty channel with the given name. The name only
// appears in diagnostics.
func New[T any](name string) *Channel[T] {
	return &Channel[T]{name: name}
}

// Name returns the channel's diagnostic name.
func (c *Channel[T]) Name() string { return c.name }

// Count returns how many records have been published so far.
func (c *Channel[T]) Count() int { return c.count }

// Closed reports whether end-of-stream has been signalled.
func (c *Channel[T]) Closed() bool { return c.closed }

// Each registers a consumer callback. Registration must happen before the
// first publish; a channel does not replay history to late subscribers.
func (c *Channel[T]) Each(fn func(T)) {
	if c.count > 0 || c.closed {
		panic(fmt.Sprintf("stream: late subscription on channel %q", c.name))
	}
	c.subs = append(c.subs, fn)
}

// OnClose registers a callback invoked once when the channel is closed.
func (c *Channel[T]) OnClose(fn func()) {
	if c.closed {
		panic(fmt.Sprintf("stream: late close subscription on channel %q", c.name))
	}
	c.closers = append(c.closers, fn)
}

// Publish delivers one record to every consumer, synchronously.
func (c *Channel[T]) Publish(v T) {
	if c.closed {
		panic(fmt.Sprintf("stream: publish on closed channel %q", c.name))
	}
	c.count++
	for _, fn := range c.subs {
		fn(v)
	}
}

// Close signals end-of-stream. Closing twice is a programmer error.
func (c *Channel[T]) Close() {
	if c.closed {
		panic(fmt.Sprintf("stream: double close of channel %q", c.name))
	}
	c.closed = true
	for _, fn := range c.closers {
		fn()
	}
}

// Feed publishes every item in order and closes the channel. Sources use
// this once wiring is complete.
func (c *Channel[T]) Feed(items []T) {
	for _, v := range items {
		c.Publish(v)
	}
	c.Close()
}

// Map derives a channel whose records are fn applied element-wise to the
// source. No work happens until the source is drained.
func Map[T, U any](src *Channel[T], name string, fn func(T) U) *Channel[U] {
	out := New[U](name)
	src.Each(func(v T) { out.Publish(fn(v)) })
	src.OnClose(out.Close)
	return out
}

// Take derives a channel carrying only the first n records of the source,
// in the source's order. n < 0 passes everything through. The derived
// channel closes as soon as the quota is reached, so downstream collect
// barriers do not wait for records that will never be forwarded.
func Take[T any](src *Channel[T], name string, n int) *Channel[T] {
	out := New[T](name)
	if n == 0 {
		// Known-empty: close as soon as wiring is done, via the source's
		// first event, so subscribers registered after us still see it.
		src.Each(func(T) {
			if !out.closed {
				out.Close()
			}
		})
		src.OnClose(func() {
			if !out.closed {
				out.Close()
			}
		})
		return out
	}
	taken := 0
	src.Each(func(v T) {
		if n >= 0 && taken >= n {
			return
		}
		out.Publish(v)
		taken++
		if n >= 0 && taken == n {
			out.Close()
		}
	})
	src.OnClose(func() {
		if !out.closed {
			out.Close()
		}
	})
	return out
}

// Collect derives a channel that buffers the whole source and emits the
// buffer as one batch after end-of-stream. A known-empty source yields an
// explicit zero-length batch rather than blocking the barrier forever.
func Collect[T any](src *Channel[T], name string) *Channel[[]T] {
	out := New[[]T](name)
	var batch []T
	src.Each(func(v T) { batch = append(batch, v) })
	src.OnClose(func() {
		out.Publish(batch)
		out.Close()
	})
	return out
}
