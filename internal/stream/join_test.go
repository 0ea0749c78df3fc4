package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyed struct {
	key string
	val string
}

func pair(a, b keyed) [2]string { return [2]string{a.val, b.val} }

func TestJoin(t *testing.T) {
	t.Run("matches keys regardless of arrival side", func(t *testing.T) {
		left := New[keyed]("left")
		right := New[keyed]("right")
		out, _ := Join(left, right, "joined",
			func(k keyed) string { return k.key },
			func(k keyed) string { return k.key },
			pair)

		var got [][2]string
		out.Each(func(p [2]string) { got = append(got, p) })

		left.Publish(keyed{"S1", "l1"})
		right.Publish(keyed{"S2", "r2"}) // buffered, left side not seen yet
		right.Publish(keyed{"S1", "r1"}) // matches the buffered left record
		left.Publish(keyed{"S2", "l2"})  // matches the buffered right record
		left.Close()
		right.Close()

		assert.Equal(t, [][2]string{{"l1", "r1"}, {"l2", "r2"}}, got)
		assert.True(t, out.Closed())
	})

	t.Run("one-sided keys are dropped and reported", func(t *testing.T) {
		left := New[keyed]("left")
		right := New[keyed]("right")
		out, stats := Join(left, right, "joined",
			func(k keyed) string { return k.key },
			func(k keyed) string { return k.key },
			pair)

		var got [][2]string
		out.Each(func(p [2]string) { got = append(got, p) })

		left.Feed([]keyed{{"S1", "l1"}, {"S2", "l2"}})
		right.Feed([]keyed{{"S1", "r1"}})

		assert.Equal(t, [][2]string{{"l1", "r1"}}, got)
		assert.Equal(t, []string{"S2"}, stats.Misses())
	})

	t.Run("closes only when both sides closed", func(t *testing.T) {
		left := New[keyed]("left")
		right := New[keyed]("right")
		out, _ := Join(left, right, "joined",
			func(k keyed) string { return k.key },
			func(k keyed) string { return k.key },
			pair)

		left.Close()
		assert.False(t, out.Closed())
		right.Close()
		assert.True(t, out.Closed())
	})
}

func TestCombine(t *testing.T) {
	merge := func(a keyed, ref string) [2]string { return [2]string{a.val, ref} }

	t.Run("buffers primary until secondary emits", func(t *testing.T) {
		primary := New[keyed]("samples")
		secondary := New[string]("reference")
		out := Combine(primary, secondary, "combined", merge)

		var got [][2]string
		out.Each(func(p [2]string) { got = append(got, p) })

		primary.Publish(keyed{"S1", "a"})
		primary.Publish(keyed{"S2", "b"})
		assert.Empty(t, got, "nothing flows before the run-scoped record arrives")

		secondary.Publish("ref.fa")
		assert.Equal(t, [][2]string{{"a", "ref.fa"}, {"b", "ref.fa"}}, got)

		primary.Publish(keyed{"S3", "c"})
		assert.Equal(t, [][2]string{{"a", "ref.fa"}, {"b", "ref.fa"}, {"c", "ref.fa"}}, got)

		primary.Close()
		secondary.Close()
		assert.True(t, out.Closed())
	})

	t.Run("secondary closing without a record drops everything", func(t *testing.T) {
		primary := New[keyed]("samples")
		secondary := New[string]("reference")
		out := Combine(primary, secondary, "combined", merge)

		out.Each(func([2]string) { t.Fatal("no record should be forwarded") })

		primary.Publish(keyed{"S1", "a"})
		secondary.Close()
		primary.Close()

		assert.True(t, out.Closed())
		assert.Equal(t, 0, out.Count())
	})

	t.Run("primary closing before secondary emits still closes", func(t *testing.T) {
		primary := New[keyed]("samples")
		secondary := New[string]("reference")
		out := Combine(primary, secondary, "combined", merge)

		var got [][2]string
		out.Each(func(p [2]string) { got = append(got, p) })

		primary.Publish(keyed{"S1", "a"})
		primary.Close()
		require.False(t, out.Closed())

		secondary.Publish("ref.fa")
		assert.Equal(t, [][2]string{{"a", "ref.fa"}}, got)
		assert.True(t, out.Closed())
	})
}
