package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterMatch(t *testing.T) {
	row := func(name string) any {
		switch name {
		case "caller":
			return "alice"
		case "callee":
			return "bob"
		case "status":
			return "ringing"
		default:
			return nil
		}
	}

	t.Run("empty filter matches everything", func(t *testing.T) {
		assert.True(t, Filter{}.Match(row))
	})

	t.Run("single equality", func(t *testing.T) {
		assert.True(t, Where(Eq("caller", "alice")).Match(row))
		assert.False(t, Where(Eq("caller", "bob")).Match(row))
	})

	t.Run("conds in a group are conjoined", func(t *testing.T) {
		assert.True(t, Where(Eq("caller", "alice"), Eq("status", "ringing")).Match(row))
		assert.False(t, Where(Eq("caller", "alice"), Eq("status", "ended")).Match(row))
	})

	t.Run("groups are disjoined", func(t *testing.T) {
		f := Where(Eq("caller", "carol")).OrWhere(Eq("callee", "bob"))
		assert.True(t, f.Match(row))

		f = Where(Eq("caller", "carol")).OrWhere(Eq("callee", "carol"))
		assert.False(t, f.Match(row))
	})

	t.Run("set membership", func(t *testing.T) {
		assert.True(t, Where(In("status", "ringing", "accepted")).Match(row))
		assert.False(t, Where(In("status", "ended", "rejected")).Match(row))
		assert.False(t, Where(In("status")).Match(row))
	})

	t.Run("unknown field never matches", func(t *testing.T) {
		assert.False(t, Where(Eq("nope", "x")).Match(row))
	})
}
