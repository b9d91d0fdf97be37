package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/rbac"
)

const (
	// TokenPrefix identifies taskboard tokens
	TokenPrefix = "tb_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: tb_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// URL-safe, no padding
	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	return fullToken, tg.HashToken(fullToken), tg.ExtractPrefix(fullToken), nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// ExtractPrefix extracts the prefix from a token for display
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}
	return token
}

// TokenStore persists API tokens
type TokenStore interface {
	CreateToken(ctx context.Context, token *APIToken) error
	GetToken(ctx context.Context, id int64) (*APIToken, error)
	GetTokenByHash(ctx context.Context, hash string) (*APIToken, error)
	TouchToken(ctx context.Context, id int64, usedAt time.Time) error
	RevokeToken(ctx context.Context, id, revokedBy int64, reason string, at time.Time) error
	ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error)
	RevokeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// UserLookup loads the account behind a token
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*User, error)
}

// TokenManager manages API token lifecycle
type TokenManager struct {
	generator   *TokenGenerator
	store       TokenStore
	users       UserLookup
	auditLogger audit.Logger
	now         func() time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager(store TokenStore, users UserLookup, auditLogger audit.Logger) *TokenManager {
	if auditLogger == nil {
		auditLogger = audit.NoOpLogger{}
	}
	return &TokenManager{
		generator:   NewTokenGenerator(),
		store:       store,
		users:       users,
		auditLogger: auditLogger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateToken creates a new API token. The plaintext token is returned
// once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name, description string, scopes []Scope, expiresAt *time.Time) (*APIToken, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", fmt.Errorf("%w: token name is required", rbac.ErrInvalidInput)
	}
	if len(scopes) == 0 {
		scopes = []Scope{ScopeAll}
	}
	for _, s := range scopes {
		if !ValidScope(s) {
			return nil, "", fmt.Errorf("%w: unknown scope %q", rbac.ErrInvalidInput, s)
		}
	}
	if expiresAt != nil && !expiresAt.After(tm.now()) {
		return nil, "", fmt.Errorf("%w: expiry must be in the future", rbac.ErrInvalidInput)
	}

	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		Description: description,
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
		CreatedAt:   tm.now(),
	}
	if err := tm.store.CreateToken(ctx, apiToken); err != nil {
		return nil, "", err
	}

	tm.log(ctx, audit.NewEvent(ctx, audit.EventTypeAuthTokenCreate, audit.EventStatusSuccess).
		WithActor(userID).
		WithResource(audit.ResourceTypeToken, strconv.FormatInt(apiToken.ID, 10)).
		With("token_prefix", tokenPrefix))

	return apiToken, token, nil
}

// ValidateToken checks the token's format, revocation and expiry and
// records its use
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	apiToken, err := tm.store.GetTokenByHash(ctx, tm.generator.HashToken(token))
	if err != nil {
		return nil, err
	}

	now := tm.now()
	switch {
	case apiToken.Revoked():
		return nil, ErrTokenRevoked
	case apiToken.Expired(now):
		return nil, ErrTokenExpired
	}

	if err := tm.store.TouchToken(ctx, apiToken.ID, now); err != nil {
		return nil, err
	}
	apiToken.LastUsedAt = &now
	return apiToken, nil
}

// Authenticate resolves a bearer token to an AuthContext. Every failure,
// including an inactive account, is reported as ErrInvalidToken.
func (tm *TokenManager) Authenticate(ctx context.Context, token string) (*AuthContext, error) {
	apiToken, err := tm.ValidateToken(ctx, token)
	if err != nil {
		tm.log(ctx, audit.NewEvent(ctx, audit.EventTypeAuthTokenValidateFail, audit.EventStatusFailure).
			WithError(err).
			With("token_prefix", tm.generator.ExtractPrefix(token)))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := tm.users.GetUser(ctx, apiToken.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: account is deactivated", ErrInvalidToken)
	}

	return &AuthContext{User: user, Token: apiToken, Scopes: apiToken.Scopes}, nil
}

// RevokeToken revokes one of actor's tokens. Tokens owned by someone else
// are reported as not found unless actor is a system admin.
func (tm *TokenManager) RevokeToken(ctx context.Context, actor *User, tokenID int64, reason string) error {
	apiToken, err := tm.store.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if apiToken.UserID != actor.ID && actor.SystemRole != rbac.SystemRoleAdmin {
		return ErrTokenNotFound
	}
	if apiToken.Revoked() {
		return ErrTokenRevoked
	}

	if err := tm.store.RevokeToken(ctx, tokenID, actor.ID, reason, tm.now()); err != nil {
		return err
	}

	tm.log(ctx, audit.NewEvent(ctx, audit.EventTypeAuthTokenRevoke, audit.EventStatusSuccess).
		WithActor(actor.ID).
		WithResource(audit.ResourceTypeToken, strconv.FormatInt(tokenID, 10)).
		WithMessage(reason))
	return nil
}

// ListUserTokens lists all tokens for a user, newest first
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	return tm.store.ListUserTokens(ctx, userID)
}

// CleanupExpiredTokens revokes every expired token that is still live
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return tm.store.RevokeExpiredTokens(ctx, tm.now())
}

// log writes an audit event; sink failures never fail the token operation
func (tm *TokenManager) log(ctx context.Context, event *audit.AuditEvent) {
	_ = tm.auditLogger.Log(ctx, event)
}
