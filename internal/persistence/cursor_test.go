package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
)

func TestCursorToken(t *testing.T) {
	require.Empty(t, EncodeCursor(nil))

	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)

	at := time.Date(2025, time.March, 3, 7, 15, 0, 123, time.FixedZone("x", 3600))
	token := EncodeCursor(&domain.Cursor{At: at, ID: "row|with|pipes"})
	c, err = DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, at.Equal(c.At))
	require.Equal(t, "row|with|pipes", c.ID)

	for _, bad := range []string{"%%%", "bm8tc2VwYXJhdG9y", "bm90LWEtdGltZXxpZA"} {
		_, err := DecodeCursor(bad)
		require.ErrorIs(t, err, domain.ErrValidation, bad)
	}
}
