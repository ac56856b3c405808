package iscn

import "time"

// Registration lifecycle states. Transitions are linear; a failed register
// after a successful upload leaves the content stored but unlinked.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
)

// Record tracks an ISCN/Arweave upload-and-register flow.
type Record struct {
	ID              string
	OwnerWallet     string
	ContentHash     string
	ContentType     string
	ContentSize     int64
	ArweaveID       string
	ISCNID          string
	TxHash          string
	Status          string
	OwnershipToken  string
	AuthToken       string
	AccessToken     string
	AccessTokenExp  time.Time
	UploadedAt      time.Time
	RegisteredAt    time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AccessTokenValid reports whether the rotated access token is still live.
func (r Record) AccessTokenValid(token string, now time.Time) bool {
	return r.AccessToken != "" && r.AccessToken == token && now.Before(r.AccessTokenExp)
}
