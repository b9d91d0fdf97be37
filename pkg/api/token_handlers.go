package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/middleware"
)

// TokenHandlers lets users manage their own API tokens
type TokenHandlers struct {
	tokens *auth.TokenManager
}

// NewTokenHandlers creates a new token handlers instance
func NewTokenHandlers(s *Server) *TokenHandlers {
	return &TokenHandlers{tokens: s.deps.Tokens}
}

// RegisterRoutes registers token routes
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	handle(router, "/tokens", http.MethodPost, auth.ScopeTokensManage, h.create)
	handle(router, "/tokens", http.MethodGet, auth.ScopeTokensManage, h.list)
	handle(router, "/tokens/{token_id:[0-9]+}", http.MethodDelete, auth.ScopeTokensManage, h.revoke)
}

type createTokenRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Scopes      []auth.Scope `json:"scopes"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

type createTokenResponse struct {
	Token    string         `json:"token"`
	APIToken *auth.APIToken `json:"api_token"`
}

// create handles POST /tokens. The plaintext token appears only here.
func (h *TokenHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user := middleware.GetAuthContext(r).User
	apiToken, token, err := h.tokens.CreateToken(r.Context(), user.ID, req.Name, req.Description, req.Scopes, req.ExpiresAt)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, createTokenResponse{Token: token, APIToken: apiToken})
}

// list handles GET /tokens
func (h *TokenHandlers) list(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetAuthContext(r).User
	tokens, err := h.tokens.ListUserTokens(r.Context(), user.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []*auth.APIToken{}
	}
	_ = httputil.WriteList(w, tokens, len(tokens), httputil.Page{})
}

// revoke handles DELETE /tokens/{token_id}
func (h *TokenHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "token_id")
	if !ok {
		return
	}
	reason := httputil.ParseQueryString(r, "reason", "revoked by user")

	if err := h.tokens.RevokeToken(r.Context(), middleware.GetAuthContext(r).User, tokenID, reason); err != nil {
		WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
