package collection

import "time"

// Collection is an NFT collection record owned by a wallet.
type Collection struct {
	ID          string
	OwnerWallet string
	ClassID     string
	Name        string
	Description string
	ImageURL    string
	URI         string
	Priority    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
