package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/user"
	userssvc "github.com/likecoin/likecoin-api-public/internal/app/services/users"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/internal/middleware"
)

type userResponse struct {
	ID               string     `json:"user"`
	EVMWallet        string     `json:"evmWallet,omitempty"`
	CosmosWallet     string     `json:"cosmosWallet,omitempty"`
	LikeWallet       string     `json:"likeWallet,omitempty"`
	SubscriptionTier string     `json:"subscriptionTier,omitempty"`
	SubscriptionEnd  *time.Time `json:"subscriptionEnd,omitempty"`
}

func toUserResponse(u user.User) userResponse {
	resp := userResponse{
		ID:               u.ID,
		EVMWallet:        u.EVMWallet,
		CosmosWallet:     u.CosmosWallet,
		LikeWallet:       u.LikeWallet,
		SubscriptionTier: u.SubscriptionTier,
	}
	if !u.SubscriptionEnd.IsZero() {
		end := u.SubscriptionEnd
		resp.SubscriptionEnd = &end
	}
	return resp
}

type registerUserRequest struct {
	User      string `json:"user"`
	Email     string `json:"email,omitempty"`
	EVMWallet string `json:"evmWallet,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.svcs.Users.Register(r.Context(), userssvc.RegisterRequest{
		ID:        req.User,
		Email:     req.Email,
		EVMWallet: req.EVMWallet,
		Referrer:  req.Referrer,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svcs.Users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleGetUserByWallet(w http.ResponseWriter, r *http.Request) {
	u, err := s.svcs.Users.GetByWallet(r.Context(), mux.Vars(r)["addr"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type challengeRequest struct {
	User   string `json:"user"`
	Wallet string `json:"wallet"`
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	nonce, err := s.svcs.Users.ChallengeNonce(r.Context(), req.User)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"nonce":   nonce,
		"message": userssvc.LinkMessage(req.User, req.Wallet, nonce),
	})
}

type loginRequest struct {
	User      string `json:"user"`
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.svcs.Users.VerifyLogin(r.Context(), req.User, req.Wallet, req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.issuer.Issue(u.ID, u.EVMWallet)
	if err != nil {
		s.writeError(w, r, apperrors.Internal("issue session token").WithCause(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// sessionUserID extracts the authenticated user from the request, writing a
// 401 when no session is present.
func (s *Server) sessionUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, apperrors.Unauthorized("not logged in"))
		return "", false
	}
	return userID, true
}

func (s *Server) handleGetSelf(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}
	u, err := s.svcs.Users.Get(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type linkEVMWalletRequest struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
}

func (s *Server) handleLinkEVMWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}
	var req linkEVMWalletRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.svcs.Users.LinkEVMWallet(r.Context(), userID, req.Wallet, req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type linkCosmosWalletRequest struct {
	Wallet    string `json:"wallet"`
	PubKey    string `json:"pubKey"`
	Signature string `json:"signature"`
}

func (s *Server) handleLinkCosmosWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}
	var req linkCosmosWalletRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.svcs.Users.LinkCosmosWallet(r.Context(), userID, req.Wallet, req.PubKey, req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type socialLinkRequest struct {
	Platform   string `json:"platform"`
	PlatformID string `json:"platformId,omitempty"`
	Handle     string `json:"handle"`
	URL        string `json:"url,omitempty"`
	IsPublic   bool   `json:"isPublic"`
}

type socialLinkResponse struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	URL      string `json:"url,omitempty"`
	IsPublic bool   `json:"isPublic"`
}

func toSocialLinkResponse(link user.SocialLink) socialLinkResponse {
	return socialLinkResponse{
		Platform: link.Platform,
		Handle:   link.Handle,
		URL:      link.URL,
		IsPublic: link.IsPublic,
	}
}

func (s *Server) handleLinkSocial(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}
	var req socialLinkRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	link, err := s.svcs.Users.LinkSocial(r.Context(), userID, user.SocialLink{
		Platform:   req.Platform,
		PlatformID: req.PlatformID,
		Handle:     req.Handle,
		URL:        req.URL,
		IsPublic:   req.IsPublic,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSocialLinkResponse(link))
}

func (s *Server) handleUnlinkSocial(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessionUserID(w, r)
	if !ok {
		return
	}
	err := s.svcs.Users.UnlinkSocial(r.Context(), userID, mux.Vars(r)["platform"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSocial(w http.ResponseWriter, r *http.Request) {
	links, err := s.svcs.Users.ListSocial(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Only links the user marked public are exposed.
	public := make([]socialLinkResponse, 0, len(links))
	for _, link := range links {
		if link.IsPublic {
			public = append(public, toSocialLinkResponse(link))
		}
	}
	writeJSON(w, http.StatusOK, public)
}

func (s *Server) handleSetBlacklisted(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminToken == "" || r.Header.Get("X-Admin-Token") != s.cfg.AdminToken {
		s.writeError(w, r, apperrors.Forbidden("admin access required"))
		return
	}
	var req struct {
		Blacklisted bool `json:"blacklisted"`
	}
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.svcs.Users.SetBlacklisted(r.Context(), mux.Vars(r)["id"], req.Blacklisted)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
