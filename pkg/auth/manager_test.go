package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/storage/sqlitetest"
)

type staticUsers map[int64]*User

func (s staticUsers) GetUser(ctx context.Context, id int64) (*User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, rbac.ErrUserNotFound
}

func newTestManager(t *testing.T) (*TokenManager, staticUsers, *audit.DBLogger) {
	t.Helper()

	db := sqlitetest.NewDB(t)
	users := staticUsers{}
	for _, u := range []struct {
		name string
		role rbac.SystemRole
	}{{"alice", rbac.SystemRoleUser}, {"bob", rbac.SystemRoleUser}, {"root", rbac.SystemRoleAdmin}} {
		id := sqlitetest.InsertUser(t, db, u.name, string(u.role))
		users[id] = &User{ID: id, Username: u.name, SystemRole: u.role, Active: true}
	}

	auditLog := audit.NewDBLogger(db)
	return NewTokenManager(NewSQLTokenStore(db), users, auditLog), users, auditLog
}

func userNamed(users staticUsers, name string) *User {
	for _, u := range users {
		if u.Username == name {
			return u
		}
	}
	return nil
}

func TestTokenManager_CreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	tm, users, _ := newTestManager(t)
	alice := userNamed(users, "alice")

	apiToken, raw, err := tm.CreateToken(ctx, alice.ID, "ci", "pipeline", []Scope{ScopeProjectsRead}, nil)
	require.NoError(t, err)
	assert.NotZero(t, apiToken.ID)
	assert.NotContains(t, apiToken.TokenHash, raw)

	authCtx, err := tm.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, authCtx.User.ID)
	assert.True(t, authCtx.HasScope(ScopeProjectsRead))
	assert.False(t, authCtx.HasScope(ScopeProjectsWrite))
	require.NotNil(t, authCtx.Token.LastUsedAt)

	tokens, err := tm.ListUserTokens(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, []Scope{ScopeProjectsRead}, tokens[0].Scopes)
	assert.NotNil(t, tokens[0].LastUsedAt)
}

func TestTokenManager_CreateToken_Validation(t *testing.T) {
	ctx := context.Background()
	tm, users, _ := newTestManager(t)
	alice := userNamed(users, "alice")

	_, _, err := tm.CreateToken(ctx, alice.ID, "", "", nil, nil)
	assert.Error(t, err)

	_, _, err = tm.CreateToken(ctx, alice.ID, "bad", "", []Scope{"module:read"}, nil)
	assert.Error(t, err)

	past := time.Now().Add(-time.Hour)
	_, _, err = tm.CreateToken(ctx, alice.ID, "stale", "", nil, &past)
	assert.Error(t, err)

	apiToken, _, err := tm.CreateToken(ctx, alice.ID, "default", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []Scope{ScopeAll}, apiToken.Scopes)
}

func TestTokenManager_AuthenticateFailures(t *testing.T) {
	ctx := context.Background()
	tm, users, _ := newTestManager(t)
	alice := userNamed(users, "alice")

	_, err := tm.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tm.Authenticate(ctx, "tb_dW5rbm93bg")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, raw, err := tm.CreateToken(ctx, alice.ID, "ci", "", nil, nil)
	require.NoError(t, err)
	alice.Active = false
	_, err = tm.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
	alice.Active = true
}

func TestTokenManager_Revoke(t *testing.T) {
	ctx := context.Background()
	tm, users, _ := newTestManager(t)
	alice := userNamed(users, "alice")
	bob := userNamed(users, "bob")
	root := userNamed(users, "root")

	apiToken, raw, err := tm.CreateToken(ctx, alice.ID, "ci", "", nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, tm.RevokeToken(ctx, bob, apiToken.ID, "nope"), ErrTokenNotFound)
	require.NoError(t, tm.RevokeToken(ctx, alice, apiToken.ID, "rotated"))
	assert.ErrorIs(t, tm.RevokeToken(ctx, alice, apiToken.ID, "again"), ErrTokenRevoked)

	_, err = tm.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tm.ValidateToken(ctx, raw)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	other, _, err := tm.CreateToken(ctx, bob.ID, "bob", "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, tm.RevokeToken(ctx, root, other.ID, "offboarding"))

	tokens, err := tm.ListUserTokens(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.NotNil(t, tokens[0].RevokedBy)
	assert.Equal(t, root.ID, *tokens[0].RevokedBy)
	assert.Equal(t, "offboarding", tokens[0].RevokeReason)
}

func TestTokenManager_Expiry(t *testing.T) {
	ctx := context.Background()
	tm, users, _ := newTestManager(t)
	alice := userNamed(users, "alice")

	expiresAt := time.Now().UTC().Add(time.Hour)
	_, raw, err := tm.CreateToken(ctx, alice.ID, "short", "", nil, &expiresAt)
	require.NoError(t, err)
	_, _, err = tm.CreateToken(ctx, alice.ID, "forever", "", nil, nil)
	require.NoError(t, err)

	_, err = tm.ValidateToken(ctx, raw)
	require.NoError(t, err)

	tm.now = func() time.Time { return expiresAt.Add(time.Second) }
	_, err = tm.ValidateToken(ctx, raw)
	assert.ErrorIs(t, err, ErrTokenExpired)

	n, err := tm.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = tm.ValidateToken(ctx, raw)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	n, err = tm.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
