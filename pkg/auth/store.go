package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/taskboard/pkg/storage"
)

// SQLTokenStore implements TokenStore over the api_tokens table
type SQLTokenStore struct {
	db *sql.DB
}

// NewSQLTokenStore creates a new token store
func NewSQLTokenStore(db *sql.DB) *SQLTokenStore {
	return &SQLTokenStore{db: db}
}

const tokenColumns = `id, user_id, token_hash, token_prefix, name, description, scopes,
	expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason`

// CreateToken implements TokenStore
func (s *SQLTokenStore) CreateToken(ctx context.Context, token *APIToken) error {
	err := storage.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, description, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, token.UserID, token.TokenHash, token.TokenPrefix, token.Name, token.Description,
		joinScopes(token.Scopes), nullTime(token.ExpiresAt), token.CreatedAt.UTC(),
	).Scan(&token.ID)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetToken implements TokenStore
func (s *SQLTokenStore) GetToken(ctx context.Context, id int64) (*APIToken, error) {
	row := storage.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE id = $1`, id)
	return scanToken(row.Scan)
}

// GetTokenByHash implements TokenStore
func (s *SQLTokenStore) GetTokenByHash(ctx context.Context, hash string) (*APIToken, error) {
	row := storage.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = $1`, hash)
	return scanToken(row.Scan)
}

// TouchToken implements TokenStore
func (s *SQLTokenStore) TouchToken(ctx context.Context, id int64, usedAt time.Time) error {
	_, err := storage.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, usedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update token usage: %w", err)
	}
	return nil
}

// RevokeToken implements TokenStore
func (s *SQLTokenStore) RevokeToken(ctx context.Context, id, revokedBy int64, reason string, at time.Time) error {
	result, err := storage.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL
	`, at.UTC(), revokedBy, reason, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ListUserTokens implements TokenStore
func (s *SQLTokenStore) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	rows, err := storage.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		token, err := scanToken(rows.Scan)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// RevokeExpiredTokens implements TokenStore
func (s *SQLTokenStore) RevokeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := storage.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = $1, revoke_reason = 'expired'
		WHERE expires_at IS NOT NULL AND expires_at <= $1 AND revoked_at IS NULL
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke expired tokens: %w", err)
	}
	return result.RowsAffected()
}

func scanToken(scan func(dest ...interface{}) error) (*APIToken, error) {
	var t APIToken
	var scopes string
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	var revokedBy sql.NullInt64

	err := scan(&t.ID, &t.UserID, &t.TokenHash, &t.TokenPrefix, &t.Name, &t.Description, &scopes,
		&expiresAt, &lastUsedAt, &t.CreatedAt, &revokedAt, &revokedBy, &t.RevokeReason)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}

	t.Scopes = splitScopes(scopes)
	t.ExpiresAt = timePtr(expiresAt)
	t.LastUsedAt = timePtr(lastUsedAt)
	t.RevokedAt = timePtr(revokedAt)
	if revokedBy.Valid {
		id := revokedBy.Int64
		t.RevokedBy = &id
	}
	return &t, nil
}

func joinScopes(scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func splitScopes(raw string) []Scope {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	scopes := make([]Scope, 0, len(parts))
	for _, p := range parts {
		scopes = append(scopes, Scope(strings.TrimSpace(p)))
	}
	return scopes
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
