package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/iscn"
	iscnsvc "github.com/likecoin/likecoin-api-public/internal/app/services/iscn"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
)

// Upload bodies are raw content, not JSON, so they get a higher cap than
// readJSON's.
const maxUploadBody = 33 << 20

type iscnRecordResponse struct {
	ID          string `json:"id"`
	OwnerWallet string `json:"ownerWallet"`
	ContentHash string `json:"contentHash"`
	ContentType string `json:"contentType,omitempty"`
	ContentSize int64  `json:"contentSize"`
	ArweaveID   string `json:"arweaveId,omitempty"`
	ISCNID      string `json:"iscnId,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Status      string `json:"status"`
}

func toISCNRecordResponse(rec iscn.Record) iscnRecordResponse {
	return iscnRecordResponse{
		ID:          rec.ID,
		OwnerWallet: rec.OwnerWallet,
		ContentHash: rec.ContentHash,
		ContentType: rec.ContentType,
		ContentSize: rec.ContentSize,
		ArweaveID:   rec.ArweaveID,
		ISCNID:      rec.ISCNID,
		TxHash:      rec.TxHash,
		Status:      rec.Status,
	}
}

type iscnEstimateRequest struct {
	Size int64 `json:"size"`
}

func (s *Server) handleISCNEstimate(w http.ResponseWriter, r *http.Request) {
	var req iscnEstimateRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := s.svcs.ISCN.Estimate(r.Context(), req.Size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price.String()})
}

func (s *Server) handleISCNUpload(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get("X-Owner-Wallet")
	if owner == "" {
		owner = r.URL.Query().Get("owner")
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBody))
	if err != nil {
		s.writeError(w, r, apperrors.Validation("cannot read upload body").WithCause(err))
		return
	}
	rec, err := s.svcs.ISCN.Upload(r.Context(), owner, data, r.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := struct {
		iscnRecordResponse
		OwnershipToken string `json:"ownershipToken,omitempty"`
		AuthToken      string `json:"authToken,omitempty"`
	}{
		iscnRecordResponse: toISCNRecordResponse(rec),
		OwnershipToken:     rec.OwnershipToken,
		AuthToken:          rec.AuthToken,
	}
	writeJSON(w, http.StatusCreated, resp)
}

type iscnRegisterRequest struct {
	RecordID      string `json:"recordId"`
	AuthToken     string `json:"authToken"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	TransferOwner bool   `json:"transferOwner,omitempty"`
}

func (s *Server) handleISCNRegister(w http.ResponseWriter, r *http.Request) {
	var req iscnRegisterRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svcs.ISCN.Register(r.Context(), iscnsvc.RegisterRequest{
		RecordID:      req.RecordID,
		AuthToken:     req.AuthToken,
		Title:         req.Title,
		Description:   req.Description,
		TransferOwner: req.TransferOwner,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toISCNRecordResponse(rec))
}

func (s *Server) handleGetISCN(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svcs.ISCN.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toISCNRecordResponse(rec))
}

type rotateISCNTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleRotateISCNToken(w http.ResponseWriter, r *http.Request) {
	var req rotateISCNTokenRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svcs.ISCN.RotateAccessToken(r.Context(), mux.Vars(r)["id"], req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": rec.AccessToken,
		"expiresAt":   rec.AccessTokenExp,
	})
}
