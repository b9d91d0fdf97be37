// Package api is the taskboard HTTP surface.
//
// Every route under /api/v1 except registration requires a bearer API
// token. Handlers pass the caller's rbac.Subject to the services, which
// make the authorization decisions; WriteError maps the resulting errors
// to status codes:
//
//	401  rbac.ErrUnauthorized, auth.ErrInvalidToken
//	403  rbac.ErrForbidden
//	400  rbac.ErrInvalidOperation, rbac.ErrInvalidRole, rbac.ErrInvalidInput
//	404  project, task, member, user and token not found
//	409  rbac.ErrMemberExists, users.ErrUserExists
//
// Token scopes are checked before the role gates; a token missing the
// route's scope gets 403 regardless of the user's roles.
package api
