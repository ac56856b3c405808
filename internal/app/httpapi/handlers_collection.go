package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/collection"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/internal/middleware"
)

type collectionRequest struct {
	ClassID     string `json:"classId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	URI         string `json:"uri,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

type collectionResponse struct {
	ID          string `json:"id"`
	OwnerWallet string `json:"ownerWallet"`
	ClassID     string `json:"classId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	URI         string `json:"uri,omitempty"`
	Priority    int    `json:"priority"`
}

func toCollectionResponse(c collection.Collection) collectionResponse {
	return collectionResponse{
		ID:          c.ID,
		OwnerWallet: c.OwnerWallet,
		ClassID:     c.ClassID,
		Name:        c.Name,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		URI:         c.URI,
		Priority:    c.Priority,
	}
}

func (s *Server) callerWallet(w http.ResponseWriter, r *http.Request) (string, bool) {
	wallet := middleware.GetWallet(r.Context())
	if wallet == "" {
		s.writeError(w, r, apperrors.Unauthorized("wallet authentication required"))
		return "", false
	}
	return wallet, true
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.callerWallet(w, r)
	if !ok {
		return
	}
	var req collectionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.svcs.Collections.Create(r.Context(), wallet, collection.Collection{
		ClassID:     req.ClassID,
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		URI:         req.URI,
		Priority:    req.Priority,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollectionResponse(c))
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := s.svcs.Collections.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionResponse(c))
}

func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.callerWallet(w, r)
	if !ok {
		return
	}
	var req collectionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.svcs.Collections.Update(r.Context(), wallet, collection.Collection{
		ID:          mux.Vars(r)["id"],
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		URI:         req.URI,
		Priority:    req.Priority,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionResponse(c))
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.callerWallet(w, r)
	if !ok {
		return
	}
	if err := s.svcs.Collections.Delete(r.Context(), wallet, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	list, err := s.svcs.Collections.ListByOwner(r.Context(), mux.Vars(r)["addr"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]collectionResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, toCollectionResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}
