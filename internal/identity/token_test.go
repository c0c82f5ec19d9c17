package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string]string

func (m memStore) GetOrInit(_ context.Context, name string, generate func() (string, error)) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	v, err := generate()
	if err != nil {
		return "", err
	}
	m[name] = v
	return v, nil
}

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer([]byte("s3cret"), time.Hour)
	id := NewUserID()

	tok, err := iss.Issue(id)
	require.NoError(t, err)

	got, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestParseRejectsForeignAndExpired(t *testing.T) {
	iss := NewIssuer([]byte("s3cret"), time.Hour)
	other := NewIssuer([]byte("other"), time.Hour)
	id := NewUserID()

	tok, err := other.Issue(id)
	require.NoError(t, err)
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, err = iss.Issue(id)
	require.NoError(t, err)
	iss.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsNonUUIDSubject(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "192.168.1.4"}).SignedString(secret)
	require.NoError(t, err)

	_, err = NewIssuer(secret, 0).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoadSecret(t *testing.T) {
	store := memStore{}

	s, err := LoadSecret(context.Background(), "configured", store)
	require.NoError(t, err)
	assert.Equal(t, "configured", string(s))
	assert.Empty(t, store)

	first, err := LoadSecret(context.Background(), "", store)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	again, err := LoadSecret(context.Background(), "", store)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}
