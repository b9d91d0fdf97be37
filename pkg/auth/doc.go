// Package auth provides identity and API token management for taskboard.
//
// # Overview
//
// Requests authenticate with a bearer API token. The token identifies a
// User, whose system role and active flag become the rbac.Subject every
// authorization decision is made for.
//
// # Tokens
//
// Tokens have the form tb_<base64url(32 random bytes)>. Only the SHA-256
// hash is stored; the plaintext is shown once at creation:
//
//	manager := auth.NewTokenManager(auth.NewSQLTokenStore(db), userService, auditLogger)
//	apiToken, plaintext, err := manager.CreateToken(ctx, user.ID, "ci", "", nil, nil)
//
// A token is accepted while it is not revoked and not expired. Each
// successful validation updates last_used_at. Expired tokens are swept by
// CleanupExpiredTokens, which the server schedules periodically.
//
// # Scopes
//
// Scopes narrow what a token may be used for on top of the holder's roles:
//
//	projects:read, projects:write  - project and membership endpoints
//	tasks:read, tasks:write        - task endpoints
//	tokens:manage                  - token endpoints
//	users:admin                    - user administration
//	*                              - everything (default)
//
// # Authentication
//
//	authCtx, err := manager.Authenticate(ctx, bearer)
//	subject := authCtx.Subject()
//
// Authenticate reports every failure as ErrInvalidToken so callers cannot
// distinguish unknown, revoked and expired tokens or deactivated accounts.
package auth
