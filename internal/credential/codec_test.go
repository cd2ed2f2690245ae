package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, now *time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec("test-secret-with-enough-entropy", DefaultTTL)
	require.NoError(t, err)
	return codec.WithClock(func() time.Time { return *now })
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	cases := []struct {
		id    string
		email string
		role  Role
	}{
		{"u-1", "buyer@example.com", RoleUser},
		{"u-2", "maker@example.com", RoleSeller},
		{"u-3", "ops@example.com", RoleAdmin},
	}
	for _, tc := range cases {
		token, err := codec.Issue(tc.id, tc.email, tc.role, time.Hour)
		require.NoError(t, err)

		claims, err := codec.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, tc.id, claims.UserID)
		assert.Equal(t, tc.email, claims.Email)
		assert.Equal(t, tc.role, claims.Role)
		assert.True(t, now.Add(time.Hour).Equal(claims.ExpiresAt.Time))
	}
}

func TestVerifyFailsAfterExpiry(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	token, err := codec.Issue("u-1", "a@example.com", RoleUser, time.Minute)
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = codec.Verify(token)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	claims, err := codec.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Nil(t, claims)
}

func TestIssueDefaultsToCodecTTL(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	token, err := codec.Issue("u-1", "a@example.com", RoleUser, 0)
	require.NoError(t, err)
	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, claims.Remaining(now))
}

func TestVerifyRejectsEveryBitFlip(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	token, err := codec.Issue("u-1", "a@example.com", RoleSeller, time.Hour)
	require.NoError(t, err)

	raw := []byte(token)
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(raw))
			copy(mutated, raw)
			mutated[i] ^= 1 << bit
			_, err := codec.Verify(string(mutated))
			if !assert.ErrorIs(t, err, ErrInvalidCredential, "byte %d bit %d", i, bit) {
				return
			}
		}
	}
}

func TestVerifyRejectsForeignAndMalformedTokens(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, &now)

	other, err := NewCodec("another-secret", DefaultTTL)
	require.NoError(t, err)
	foreign, err := other.WithClock(func() time.Time { return now }).Issue("u-1", "a@example.com", RoleAdmin, time.Hour)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", "a.b.c", foreign} {
		claims, err := codec.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
		assert.Nil(t, claims)
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, &now)

	_, err := codec.Issue("u-1", "a@example.com", Role("owner"), time.Hour)
	assert.Error(t, err)
	_, err = codec.Issue("", "a@example.com", RoleUser, time.Hour)
	assert.Error(t, err)
}
