package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	iss, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)

	token, err := iss.Issue(123456)
	require.NoError(t, err)

	claims, err := iss.Verify(token)
	require.NoError(t, err)
	id, err := claims.ExternalID()
	require.NoError(t, err)
	assert.Equal(t, int64(123456), id)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, "quill", claims.Issuer)

	other, err := iss.Issue(123456)
	require.NoError(t, err)
	otherClaims, err := iss.Verify(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID, "each token gets a fresh id")
}

func TestVerifyRejects(t *testing.T) {
	iss, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	token, err := iss.Issue(1)
	require.NoError(t, err)

	wrong, err := NewIssuer("other", time.Hour)
	require.NoError(t, err)
	_, err = wrong.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// expired
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := iss.Issue(1)
	require.NoError(t, err)
	iss.now = time.Now
	_, err = iss.Verify(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// foreign signing method
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1", Issuer: "quill"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// non-numeric subject
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "bob", Issuer: "quill"}).
		SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = iss.Verify(bad)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerNeedsSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}
