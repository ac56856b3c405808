package ledger

import "time"

// Transaction record statuses.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Transaction types understood by the metadata allowlist.
const (
	TypeTransfer = "transfer"
	TypeMultiPay = "multipay"
	TypeISCN     = "iscn"
)

// Transaction is a durable ledger entry keyed by transaction hash. It is
// created before or immediately after broadcast and patched exactly once
// with status, and at most once with metadata.
type Transaction struct {
	TxHash      string
	Type        string
	From        string
	To          []string
	Amounts     []string
	TotalAmount string
	Status      string
	Sequence    uint64
	RawPayload  string
	UpdateToken string
	Metadata    map[string]string
	Remarks     string
	FailReason  string
	CreatedAt   time.Time
	CompletedAt time.Time
	UpdatedAt   time.Time
}

// MetadataAllowlist returns the metadata fields writable for a transaction
// type. Fields outside the allowlist are dropped silently.
func MetadataAllowlist(txType string) []string {
	switch txType {
	case TypeTransfer, TypeMultiPay:
		return []string{"note", "app", "referrer", "utm_source", "http_referrer"}
	case TypeISCN:
		return []string{"iscn_id", "content_fingerprint", "app"}
	default:
		return nil
	}
}

// FilterMetadata keeps only allowlisted fields for the transaction type.
func FilterMetadata(txType string, metadata map[string]string) map[string]string {
	allowed := MetadataAllowlist(txType)
	if len(allowed) == 0 || len(metadata) == 0 {
		return nil
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, field := range allowed {
		allowedSet[field] = true
	}

	filtered := make(map[string]string)
	for key, value := range metadata {
		if allowedSet[key] {
			filtered[key] = value
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
