package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditSnapshot struct {
	IntentID string            `json:"intent_id"`
	Status   string            `json:"status"`
	Card     map[string]string `json:"card"`
}

func TestNewSealer(t *testing.T) {
	t.Run("rejects short secret", func(t *testing.T) {
		_, err := NewSealer("short")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("accepts long secret", func(t *testing.T) {
		s, err := NewSealer("0123456789abcdef0123456789abcdef")
		require.NoError(t, err)
		assert.NotNil(t, s)
	})
}

func TestSealer_EncryptDecrypt(t *testing.T) {
	sealer, err := NewSealer("test-at-rest-secret-0123456789")
	require.NoError(t, err)

	in := auditSnapshot{
		IntentID: "b8c1",
		Status:   "COMPLETED",
		Card:     map[string]string{"lastFour": "0326", "brand": "VISA"},
	}

	t.Run("round trips", func(t *testing.T) {
		blob, err := sealer.EncryptAtRest(in)
		require.NoError(t, err)

		parts := strings.Split(blob, ":")
		require.Len(t, parts, 2)
		assert.NotContains(t, blob, "0326")

		var out auditSnapshot
		require.NoError(t, sealer.DecryptAtRest(blob, &out))
		assert.Equal(t, in, out)
	})

	t.Run("uses a fresh iv each time", func(t *testing.T) {
		a, err := sealer.EncryptAtRest(in)
		require.NoError(t, err)
		b, err := sealer.EncryptAtRest(in)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("detects tampering", func(t *testing.T) {
		blob, err := sealer.EncryptAtRest(in)
		require.NoError(t, err)

		head, body, _ := strings.Cut(blob, ":")
		tampered := head + ":" + flipFirstChar(body)

		var out auditSnapshot
		assert.ErrorIs(t, sealer.DecryptAtRest(tampered, &out), ErrDecryptionFailed)
	})

	t.Run("fails with another key", func(t *testing.T) {
		blob, err := sealer.EncryptAtRest(in)
		require.NoError(t, err)

		other, err := NewSealer("another-at-rest-secret-987654321")
		require.NoError(t, err)

		var out auditSnapshot
		assert.ErrorIs(t, other.DecryptAtRest(blob, &out), ErrDecryptionFailed)
	})

	t.Run("rejects malformed blobs", func(t *testing.T) {
		var out auditSnapshot
		assert.ErrorIs(t, sealer.DecryptAtRest("no-separator", &out), ErrDecryptionFailed)
		assert.ErrorIs(t, sealer.DecryptAtRest("!!:!!", &out), ErrDecryptionFailed)
		assert.ErrorIs(t, sealer.DecryptAtRest("AAAA:AAAA", &out), ErrDecryptionFailed)
	})
}

func flipFirstChar(s string) string {
	if s[0] == 'A' {
		return "B" + s[1:]
	}
	return "A" + s[1:]
}
