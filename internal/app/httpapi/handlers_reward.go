package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/reward"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/internal/middleware"
)

type claimBonusesRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleClaimBonuses(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, apperrors.Unauthorized("not logged in"))
		return
	}
	var req claimBonusesRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.svcs.Rewards.ClaimBonusesByType(r.Context(), userID, req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"value": total})
}

type couponResponse struct {
	Code      string     `json:"code"`
	Value     int64      `json:"value"`
	IsClaimed bool       `json:"isClaimed"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func toCouponResponse(c reward.Coupon) couponResponse {
	resp := couponResponse{
		Code:      c.Code,
		Value:     c.Value,
		IsClaimed: c.IsClaimed,
	}
	if !c.ExpiresAt.IsZero() {
		exp := c.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}

func (s *Server) handleGetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := s.svcs.Rewards.GetCoupon(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

type claimCouponRequest struct {
	Wallet string `json:"wallet"`
}

func (s *Server) handleClaimCoupon(w http.ResponseWriter, r *http.Request) {
	var req claimCouponRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	wallet := req.Wallet
	if wallet == "" {
		wallet = middleware.GetWallet(r.Context())
	}
	c, txHash, err := s.svcs.Rewards.ClaimCoupon(r.Context(), mux.Vars(r)["code"], wallet)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":   c.Code,
		"value":  c.Value,
		"txHash": txHash,
	})
}

type missionResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	RewardValue int64  `json:"rewardValue"`
}

func toMissionResponse(m reward.Mission) missionResponse {
	return missionResponse{
		ID:          m.ID,
		Type:        m.Type,
		Status:      m.Status,
		Priority:    m.Priority,
		RewardValue: m.RewardValue,
	}
}

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, apperrors.Unauthorized("not logged in"))
		return
	}
	missions, err := s.svcs.Rewards.ListMissions(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]missionResponse, 0, len(missions))
	for _, m := range missions {
		resp = append(resp, toMissionResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

type claimMissionRequest struct {
	MissionID string `json:"missionId"`
	Proof     string `json:"proof,omitempty"`
}

func (s *Server) handleClaimMission(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, apperrors.Unauthorized("not logged in"))
		return
	}
	var req claimMissionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.svcs.Rewards.ClaimMission(r.Context(), userID, req.MissionID, req.Proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionResponse(m))
}
