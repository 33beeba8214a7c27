package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheapParams = Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakeClock lets tests move an issuer through time.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestIssuer(t *testing.T) (*Issuer, *fakeClock) {
	t.Helper()
	i, err := NewIssuer(nil, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Now()}
	i.now = clock.now
	return i, clock
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse", cheapParams)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	ok, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong horse", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("x", "$bcrypt$nope")
	require.ErrorIs(t, err, ErrInvalidHash)
	_, err = VerifyPassword("x", "$argon2id$v=18$m=64,t=1,p=1$c2FsdA$a2V5")
	require.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestIssuerVerify(t *testing.T) {
	i, clock := newTestIssuer(t)
	tokens, err := i.Issue("user-1")
	require.NoError(t, err)

	sub, err := i.Verify(tokens.AccessToken, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = i.Verify(tokens.RefreshToken, AccessToken)
	require.ErrorIs(t, err, ErrWrongTokenType)

	_, err = i.Verify("garbage", AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	other, _ := newTestIssuer(t)
	_, err = other.Verify(tokens.AccessToken, AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken, "a different key must not verify")

	clock.t = clock.t.Add(time.Hour)
	_, err = i.Verify(tokens.AccessToken, AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
	sub, err = i.Verify(tokens.RefreshToken, RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestIssuerSeed(t *testing.T) {
	seed := make([]byte, 32)
	a, err := NewIssuer(seed, time.Minute, time.Hour)
	require.NoError(t, err)
	b, err := NewIssuer(seed, time.Minute, time.Hour)
	require.NoError(t, err)

	tokens, err := a.Issue("user-2")
	require.NoError(t, err)
	sub, err := b.Verify(tokens.AccessToken, AccessToken)
	require.NoError(t, err, "same seed, same key")
	assert.Equal(t, "user-2", sub)

	_, err = NewIssuer([]byte("short"), time.Minute, time.Hour)
	require.Error(t, err)
}

func TestProviderAnonymousAndSetSession(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	issuer, clock := newTestIssuer(t)
	p := NewProvider(store, issuer, cheapParams, quietLogger())

	userID, tokens, err := p.SignUpAnonymous(ctx)
	require.NoError(t, err)
	u, err := store.GetUserByID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, u.IsAnonymous)
	assert.True(t, strings.HasPrefix(u.Email, "anon-"))
	assert.True(t, strings.HasSuffix(u.Email, "@explorers.club"))

	got, same, err := p.SetSession(ctx, tokens)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.Equal(t, tokens, same)

	clock.t = clock.t.Add(time.Hour)
	got, rotated, err := p.SetSession(ctx, tokens)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NotEqual(t, tokens.AccessToken, rotated.AccessToken)

	clock.t = clock.t.Add(48 * time.Hour)
	_, _, err = p.SetSession(ctx, tokens)
	require.ErrorIs(t, err, ErrTokenExpired)

	orphan, err := issuer.Issue("ghost")
	require.NoError(t, err)
	_, _, err = p.SetSession(ctx, orphan)
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestProviderSignUpSignInClaim(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	issuer, _ := newTestIssuer(t)
	p := NewProvider(store, issuer, cheapParams, quietLogger())

	in := models.LoginInput{Email: "ada@explorers.club", Password: "lovelace"}
	user, _, err := p.SignUp(ctx, in)
	require.NoError(t, err)
	_, _, err = p.SignUp(ctx, in)
	require.ErrorIs(t, err, database.ErrDuplicate)

	tokens, err := p.SignIn(ctx, in)
	require.NoError(t, err)
	sub, err := issuer.Verify(tokens.AccessToken, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, sub)

	_, err = p.SignIn(ctx, models.LoginInput{Email: in.Email, Password: "babbage"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignIn(ctx, models.LoginInput{Email: in.Email, Password: "1"})
	require.Error(t, err)

	_, err = p.ClaimAnonymous(ctx, tokens.AccessToken, models.LoginInput{Email: "x@explorers.club", Password: "secret"})
	require.ErrorIs(t, err, ErrNotAnonymous)

	anonID, anonTokens, err := p.SignUpAnonymous(ctx)
	require.NoError(t, err)
	_, err = p.ClaimAnonymous(ctx, anonTokens.AccessToken, models.LoginInput{Email: "grace@explorers.club", Password: "hopper"})
	require.NoError(t, err)

	claimed, err := p.SignIn(ctx, models.LoginInput{Email: "grace@explorers.club", Password: "hopper"})
	require.NoError(t, err)
	sub, err = issuer.Verify(claimed.AccessToken, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, anonID, sub)

	// anonymous accounts have no password to sign in with
	anon2, _, err := p.SignUpAnonymous(ctx)
	require.NoError(t, err)
	u, err := store.GetUserByID(ctx, anon2)
	require.NoError(t, err)
	_, err = p.SignIn(ctx, models.LoginInput{Email: u.Email, Password: "anything"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
