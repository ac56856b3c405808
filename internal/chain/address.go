package chain

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/sha3"
)

// Bech32 prefixes accepted for Cosmos-family wallet addresses.
const (
	Bech32PrefixLike   = "like"
	Bech32PrefixCosmos = "cosmos"
)

// IsValidEVMAddress reports whether s is a 20-byte hex address. Mixed-case
// addresses must carry a valid EIP-55 checksum; all-lower or all-upper hex
// is accepted without one.
func IsValidEVMAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 42 {
		return false
	}
	hexPart := s[2:]
	for _, r := range hexPart {
		if !isHexChar(r) {
			return false
		}
	}

	lower := strings.ToLower(hexPart)
	upper := strings.ToUpper(hexPart)
	if hexPart == lower || hexPart == upper {
		return true
	}
	return checksumAddress(lower) == hexPart
}

func isHexChar(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// checksumAddress applies EIP-55 casing to a lowercase hex address body.
func checksumAddress(lowerHex string) string {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lowerHex))
	hash := hasher.Sum(nil)

	out := []byte(lowerHex)
	for i, ch := range out {
		if ch < 'a' || ch > 'f' {
			continue
		}
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = ch - 'a' + 'A'
		}
	}
	return string(out)
}

// ChecksumEVMAddress normalizes an address to its EIP-55 form.
func ChecksumEVMAddress(s string) (string, error) {
	if !IsValidEVMAddress(s) {
		return "", fmt.Errorf("invalid EVM address %q", s)
	}
	return "0x" + checksumAddress(strings.ToLower(s[2:])), nil
}

// NormalizeEVMAddress returns the EIP-55 form of an already-validated
// address. Invalid input is returned unchanged.
func NormalizeEVMAddress(s string) string {
	out, err := ChecksumEVMAddress(s)
	if err != nil {
		return s
	}
	return out
}

// IsValidBech32Address reports whether s is a bech32 address with the given
// human-readable prefix.
func IsValidBech32Address(s, prefix string) bool {
	hrp, _, err := bech32.Decode(s)
	if err != nil {
		return false
	}
	return hrp == prefix
}

// IsValidLikeAddress reports whether s is a like-prefixed wallet address.
func IsValidLikeAddress(s string) bool {
	return IsValidBech32Address(s, Bech32PrefixLike)
}

// IsValidCosmosAddress reports whether s is a cosmos-prefixed wallet address.
func IsValidCosmosAddress(s string) bool {
	return IsValidBech32Address(s, Bech32PrefixCosmos)
}

// ConvertBech32Prefix re-encodes an address under a different prefix. The
// like and cosmos address spaces share key material, differing only in hrp.
func ConvertBech32Prefix(address, newPrefix string) (string, error) {
	_, data, err := bech32.Decode(address)
	if err != nil {
		return "", fmt.Errorf("decode bech32 address: %w", err)
	}
	converted, err := bech32.Encode(newPrefix, data)
	if err != nil {
		return "", fmt.Errorf("encode bech32 address: %w", err)
	}
	return converted, nil
}
