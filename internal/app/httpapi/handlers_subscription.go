package httpapi

import (
	"net/http"

	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/internal/middleware"
)

type activateSubscriptionRequest struct {
	Tier string `json:"tier"`
}

func (s *Server) handleActivateSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, apperrors.Unauthorized("not logged in"))
		return
	}
	var req activateSubscriptionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.svcs.Subscriptions.Activate(r.Context(), userID, req.Tier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type cancelSubscriptionRequest struct {
	Reference string `json:"reference,omitempty"`
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, apperrors.Unauthorized("not logged in"))
		return
	}
	var req cancelSubscriptionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.svcs.Subscriptions.Cancel(r.Context(), userID, req.Reference)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
