package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClaims struct {
	Base
	CustomerID int64  `json:"cid"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC)
	codec := NewCodec(testSecret, "customer", 7*24*time.Hour).WithClock(fixedClock(now))

	in := &testClaims{CustomerID: 42, Email: "ana@example.com", Name: "Ana Ñúñez"}
	raw, expiresAt, err := codec.Issue(in)
	require.NoError(t, err)
	require.Equal(t, now.Add(7*24*time.Hour), expiresAt)
	require.NotContains(t, raw, ";")
	require.NotContains(t, raw, " ")
	require.NotContains(t, raw, "=")

	var out testClaims
	require.NoError(t, codec.Verify(raw, &out))
	require.Equal(t, int64(42), out.CustomerID)
	require.Equal(t, "ana@example.com", out.Email)
	require.Equal(t, "Ana Ñúñez", out.Name)
	require.Equal(t, now, out.IssuedAt.Time.UTC())
	require.Equal(t, expiresAt, out.ExpiresAt.Time.UTC())
}

func TestVerifyExpiry(t *testing.T) {
	now := time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC)
	issuer := NewCodec(testSecret, "customer", time.Hour).WithClock(fixedClock(now))
	raw, expiresAt, err := issuer.Issue(&testClaims{CustomerID: 1})
	require.NoError(t, err)

	justBefore := NewCodec(testSecret, "customer", time.Hour).WithClock(fixedClock(expiresAt.Add(-time.Second)))
	require.NoError(t, justBefore.Verify(raw, &testClaims{}))

	after := NewCodec(testSecret, "customer", time.Hour).WithClock(fixedClock(expiresAt.Add(time.Second)))
	require.ErrorIs(t, after.Verify(raw, &testClaims{}), ErrInvalid)
}

func TestVerifyRejectsTampering(t *testing.T) {
	codec := NewCodec(testSecret, "customer", time.Hour)
	raw, _, err := codec.Issue(&testClaims{CustomerID: 42, Email: "a@b.c", Name: "A"})
	require.NoError(t, err)

	segments := strings.Split(raw, ".")
	require.Len(t, segments, 3)

	// Skip the last character of each segment: its low bits may be padding.
	offset := 0
	for _, seg := range segments {
		for i := 0; i < len(seg)-1; i++ {
			pos := offset + i
			b := []byte(raw)
			if b[pos] == 'A' {
				b[pos] = 'B'
			} else {
				b[pos] = 'A'
			}
			require.ErrorIs(t, codec.Verify(string(b), &testClaims{}), ErrInvalid, "position %d", pos)
		}
		offset += len(seg) + 1
	}
}

func TestVerifyRejectsWrongSecretAndAudience(t *testing.T) {
	codec := NewCodec(testSecret, "customer", time.Hour)
	raw, _, err := codec.Issue(&testClaims{CustomerID: 7})
	require.NoError(t, err)

	rotated := NewCodec(strings.Repeat("z", 32), "customer", time.Hour)
	require.ErrorIs(t, rotated.Verify(raw, &testClaims{}), ErrInvalid)

	admin := NewCodec(testSecret, "admin", time.Hour)
	require.ErrorIs(t, admin.Verify(raw, &testClaims{}), ErrInvalid)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec := NewCodec(testSecret, "customer", time.Hour)
	for _, raw := range []string{"", "abc", "a.b.c", "..", "eyJhbGciOiJub25lIn0.eyJjaWQiOjF9."} {
		require.ErrorIs(t, codec.Verify(raw, &testClaims{}), ErrInvalid, raw)
	}
}
