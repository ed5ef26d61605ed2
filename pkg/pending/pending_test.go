package pending

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gastos/pkg/extract"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	r := extract.New().Extract("TOTAL: $12.990")
	require.NoError(t, s.Put(Entry{UserID: 1, ClientID: "abc", Result: r, RawExcerpt: "TOTAL: $12.990"}))

	got, err := s.Get(1, "abc")
	require.NoError(t, err)
	require.EqualValues(t, 12990, got.Result.Fields.Total)
	require.Equal(t, "total_colon", got.Result.Trace[extract.FieldTotal].Rule)
	require.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(2, "abc")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(1, "abc"))
	require.NoError(t, s.Delete(1, "abc"))
	_, err = s.Get(1, "abc")
	require.ErrorIs(t, err, ErrNotFound)

	require.Error(t, s.Put(Entry{UserID: 1}))
}

func TestListIsScopedToUser(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	for _, e := range []Entry{
		{UserID: 1, ClientID: "b"},
		{UserID: 1, ClientID: "a"},
		{UserID: 11, ClientID: "x"},
		{UserID: 2, ClientID: "y"},
	} {
		require.NoError(t, s.Put(e))
	}

	got, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ClientID)
	require.Equal(t, "b", got[1].ClientID)

	none, err := s.List(3)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestPrune(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	now := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(Entry{UserID: 1, ClientID: "old", CreatedAt: now.AddDate(0, 0, -10)}))
	require.NoError(t, s.Put(Entry{UserID: 1, ClientID: "new", CreatedAt: now}))

	n, err := s.Prune(now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "new", got[0].ClientID)
}
