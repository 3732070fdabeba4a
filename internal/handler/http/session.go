package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/cartstore/internal/cart"
	"github.com/utafrali/cartstore/internal/identity"
	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/httputil"
	"github.com/utafrali/cartstore/pkg/middleware"
)

// SessionHandler switches the active identity.
type SessionHandler struct {
	session *identity.Session
	store   *cart.Store
	logger  *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(session *identity.Session, store *cart.Store, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		session: session,
		store:   store,
		logger:  logger,
	}
}

// SessionResponse reports the active identity and its cart.
type SessionResponse struct {
	UserID string   `json:"userId,omitempty"`
	Guest  bool     `json:"guest"`
	Cart   CartView `json:"cart"`
}

// SignIn handles POST /api/v1/session. The identity comes from the bearer token
// verified by the Auth middleware.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	userID := middleware.SubjectFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	h.session.SignIn(userID)
	h.logger.InfoContext(r.Context(), "session signed in", slog.String("user_id", userID))

	httputil.WriteData(w, http.StatusOK, h.response())
}

// SignOut handles DELETE /api/v1/session. Only the signed-in user may end the
// session; signing out a guest session is a no-op.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID := middleware.SubjectFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}
	if current := h.session.Current(); current != "" && current != userID {
		httputil.WriteError(w, r, apperrors.Forbidden("session belongs to another user"), h.logger)
		return
	}

	h.session.SignOut()
	h.logger.InfoContext(r.Context(), "session signed out", slog.String("user_id", userID))

	httputil.WriteData(w, http.StatusOK, h.response())
}

// Current handles GET /api/v1/session
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.response())
}

func (h *SessionHandler) response() SessionResponse {
	id := h.session.Current()
	return SessionResponse{
		UserID: id,
		Guest:  id == "",
		Cart:   viewOf(h.store),
	}
}
