package annotate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()
	b := deckBatcher(t)

	s1, err := Parse(strings.NewReader(`<p>学校</p>`), b, Options{Logger: quiet()})
	require.NoError(t, err)
	s2, err := Parse(strings.NewReader(`<p>行く</p>`), b, Options{Logger: quiet()})
	require.NoError(t, err)

	id1 := r.Add(s1)
	id2 := r.Add(s2)
	require.Len(t, id1, 26)
	require.Equal(t, id1, s1.ID())
	require.Equal(t, []string{id1, id2}, r.IDs(), "ulids sort by creation")

	got, err := r.Get(id2)
	require.NoError(t, err)
	require.Same(t, s2, got)

	require.True(t, r.Remove(id1))
	require.False(t, r.Remove(id1))
	_, err = r.Get(id1)
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRegistry_BroadcastFansOut(t *testing.T) {
	r := NewRegistry()
	b := deckBatcher(t)

	var sessions []*Session
	for _, src := range []string{`<p>学校</p>`, `<p>学校に行く</p>`} {
		s, err := Parse(strings.NewReader(src), b, Options{Logger: quiet()})
		require.NoError(t, err)
		_, err = s.Annotate(context.Background())
		require.NoError(t, err)
		r.Add(s)
		sessions = append(sessions, s)
	}

	n := r.Broadcast([]card.StateChange{{Key: gakkou.Key(), State: card.Plain(card.Due)}})
	require.Equal(t, 2, n)

	for _, s := range sessions {
		class, _, ok := s.Lookup(gakkou.Key())
		require.True(t, ok)
		require.Equal(t, "jpdb-word due", class)
	}
	class, _, ok := sessions[1].Lookup(iku.Key())
	require.True(t, ok)
	require.Equal(t, "jpdb-word new", class, "other keys untouched")
}
