package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	paymentsvc "github.com/likecoin/likecoin-api-public/internal/app/services/payment"
	"github.com/likecoin/likecoin-api-public/internal/middleware"
)

type payRequest struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Amount   string            `json:"amount"`
	SignedTx string            `json:"signedTx"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Remarks  string            `json:"remarks,omitempty"`
}

type multiPayRequest struct {
	From     string            `json:"from"`
	To       []string          `json:"to"`
	Amounts  []string          `json:"amounts"`
	SignedTx string            `json:"signedTx"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Remarks  string            `json:"remarks,omitempty"`
}

type payResponse struct {
	TxHash      string `json:"txHash"`
	UpdateToken string `json:"updateToken,omitempty"`
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.svcs.Payments.Pay(r.Context(), paymentsvc.PayRequest{
		From:     req.From,
		To:       req.To,
		Amount:   req.Amount,
		SignedTx: req.SignedTx,
		Metadata: req.Metadata,
		Remarks:  req.Remarks,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payResponse{TxHash: result.TxHash, UpdateToken: result.UpdateToken})
}

func (s *Server) handleMultiPay(w http.ResponseWriter, r *http.Request) {
	var req multiPayRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.svcs.Payments.MultiPay(r.Context(), paymentsvc.MultiPayRequest{
		From:     req.From,
		To:       req.To,
		Amounts:  req.Amounts,
		SignedTx: req.SignedTx,
		Metadata: req.Metadata,
		Remarks:  req.Remarks,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payResponse{TxHash: result.TxHash, UpdateToken: result.UpdateToken})
}

type txResponse struct {
	TxHash      string            `json:"txHash"`
	Type        string            `json:"type"`
	From        string            `json:"from"`
	To          []string          `json:"to,omitempty"`
	Amounts     []string          `json:"amounts,omitempty"`
	TotalAmount string            `json:"totalAmount,omitempty"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Remarks     string            `json:"remarks,omitempty"`
	FailReason  string            `json:"failReason,omitempty"`
	CreatedAt   time.Time         `json:"ts"`
	CompletedAt *time.Time        `json:"completedTs,omitempty"`
}

func toTxResponse(tx ledger.Transaction) txResponse {
	resp := txResponse{
		TxHash:      tx.TxHash,
		Type:        tx.Type,
		From:        tx.From,
		To:          tx.To,
		Amounts:     tx.Amounts,
		TotalAmount: tx.TotalAmount,
		Status:      tx.Status,
		Metadata:    tx.Metadata,
		Remarks:     tx.Remarks,
		FailReason:  tx.FailReason,
		CreatedAt:   tx.CreatedAt,
	}
	if !tx.CompletedAt.IsZero() {
		completed := tx.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request) {
	tx, err := s.svcs.Ledger.GetTx(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTxResponse(tx))
}

type txMetadataRequest struct {
	Metadata    map[string]string `json:"metadata"`
	UpdateToken string            `json:"updateToken,omitempty"`
}

func (s *Server) handleUpdateTxMetadata(w http.ResponseWriter, r *http.Request) {
	var req txMetadataRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := ledgersvc.Caller{
		Wallet:      middleware.GetWallet(r.Context()),
		UpdateToken: req.UpdateToken,
	}
	tx, err := s.svcs.Ledger.UpdateTxMetadata(r.Context(), mux.Vars(r)["hash"], req.Metadata, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTxResponse(tx))
}

func (s *Server) handleTxHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}
	txs, err := s.svcs.Ledger.ListByAddress(r.Context(), mux.Vars(r)["addr"], limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]txResponse, len(txs))
	for i, tx := range txs {
		out[i] = toTxResponse(tx)
	}
	writeJSON(w, http.StatusOK, out)
}
