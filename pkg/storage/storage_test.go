package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "7/2024/03/abc_boleta_1.jpg", Key(7, "abc", "boleta 1.jpg", now))
	require.Equal(t, "7/2024/03/x_y_passwd", Key(7, "x/y", "../../etc/passwd", now))
	require.Equal(t, "7/2024/03/abc_file", Key(7, "abc", "", now))
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	t.Parallel()

	for _, k := range []string{"", "../x", "a/../../b", "a/./b", "."} {
		_, err := cleanKey(k)
		require.ErrorIs(t, err, ErrInvalidKey, k)
	}
	k, err := cleanKey("1/2024/03/a.jpg")
	require.NoError(t, err)
	require.Equal(t, "1/2024/03/a.jpg", k)
}

func TestLocalRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	key := "1/2024/03/a_boleta.jpg"
	require.NoError(t, s.Save(ctx, key, strings.NewReader("data")))

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "data", string(b))

	require.NoError(t, s.Save(ctx, key, strings.NewReader("new")))
	rc, err = s.Open(ctx, key)
	require.NoError(t, err)
	b, _ = io.ReadAll(rc)
	rc.Close()
	require.Equal(t, "new", string(b))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Open(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.Save(ctx, "../escape", strings.NewReader("x")), ErrInvalidKey)
}
