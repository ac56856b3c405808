package chain

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"
)

// Msg is a single amino-encoded message inside a StdTx. Value must be built
// from map[string]interface{} so JSON marshalling yields sorted keys, which
// the sign doc requires.
type Msg struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Fee is the StdTx fee block.
type Fee struct {
	Amount []Coin `json:"amount"`
	Gas    uint64 `json:"gas"`
}

// Coin is an amount in a named denomination.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// Signer signs legacy amino StdTx payloads for server-initiated Cosmos
// transactions such as ISCN registration.
type Signer struct {
	priv    *secp256k1.PrivateKey
	chainID string
	address string
}

// NewSigner builds a signer from a hex-encoded secp256k1 private key.
func NewSigner(privKeyHex, chainID, bech32Prefix string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}

	priv := secp256k1.PrivKeyFromBytes(raw)
	address, err := bech32AddressFromPubKey(priv.PubKey(), bech32Prefix)
	if err != nil {
		return nil, err
	}

	return &Signer{
		priv:    priv,
		chainID: chainID,
		address: address,
	}, nil
}

// Address returns the signer's bech32 address.
func (s *Signer) Address() string { return s.address }

func bech32AddressFromPubKey(pub *secp256k1.PublicKey, prefix string) (string, error) {
	sha := sha256.Sum256(pub.SerializeCompressed())
	ripemd := ripemd160.New()
	ripemd.Write(sha[:])
	hash := ripemd.Sum(nil)

	fiveBit, err := bech32.ConvertBits(hash, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert address bits: %w", err)
	}
	address, err := bech32.Encode(prefix, fiveBit)
	if err != nil {
		return "", fmt.Errorf("encode address: %w", err)
	}
	return address, nil
}

// SignStdTx produces the signed StdTx JSON for the given account state and
// messages. The sign doc is the sorted-key JSON of the canonical fields,
// numbers rendered as strings, hashed with SHA-256.
func (s *Signer) SignStdTx(accountNumber, sequence uint64, msgs []Msg, fee Fee, memo string) (json.RawMessage, error) {
	feeDoc := map[string]interface{}{
		"amount": fee.Amount,
		"gas":    strconv.FormatUint(fee.Gas, 10),
	}
	signDoc := map[string]interface{}{
		"account_number": strconv.FormatUint(accountNumber, 10),
		"chain_id":       s.chainID,
		"fee":            feeDoc,
		"memo":           memo,
		"msgs":           msgs,
		"sequence":       strconv.FormatUint(sequence, 10),
	}

	docBytes, err := json.Marshal(signDoc)
	if err != nil {
		return nil, fmt.Errorf("marshal sign doc: %w", err)
	}

	digest := sha256.Sum256(docBytes)
	compact := ecdsa.SignCompact(s.priv, digest[:], true)
	// SignCompact prepends a recovery byte; StdTx signatures carry r||s only.
	signature := compact[1:]

	stdTx := map[string]interface{}{
		"msg":  msgs,
		"fee":  feeDoc,
		"memo": memo,
		"signatures": []map[string]interface{}{
			{
				"pub_key": map[string]interface{}{
					"type":  "tendermint/PubKeySecp256k1",
					"value": base64.StdEncoding.EncodeToString(s.priv.PubKey().SerializeCompressed()),
				},
				"signature": base64.StdEncoding.EncodeToString(signature),
			},
		},
	}

	txBytes, err := json.Marshal(stdTx)
	if err != nil {
		return nil, fmt.Errorf("marshal std tx: %w", err)
	}
	return txBytes, nil
}

// RecoverPersonalSignAddress recovers the EVM address that produced an
// eth_sign/personal_sign signature over message.
func RecoverPersonalSignAddress(message string, sigHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	recovery := sig[64]
	if recovery >= 27 {
		recovery -= 27
	}
	if recovery > 1 {
		return "", fmt.Errorf("invalid recovery id %d", sig[64])
	}

	// RecoverCompact wants the recovery header first; Ethereum puts it last.
	compact := make([]byte, 65)
	compact[0] = recovery + 27
	copy(compact[1:], sig[:64])

	digest := personalSignHash(message)
	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}

	return evmAddressFromPubKey(pub), nil
}

// VerifyPersonalSign reports whether sigHex over message was produced by the
// holder of address.
func VerifyPersonalSign(address, message, sigHex string) bool {
	recovered, err := RecoverPersonalSignAddress(message, sigHex)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, address)
}

func personalSignHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(prefixed))
	return hasher.Sum(nil)
}

func evmAddressFromPubKey(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(uncompressed[1:])
	hash := hasher.Sum(nil)
	return "0x" + checksumAddress(hex.EncodeToString(hash[12:]))
}

// VerifyCosmosSign verifies a DER signature over sha256(message) against
// the supplied compressed public key and returns the signer's bech32
// address under prefix. Used for wallet-ownership proofs.
func VerifyCosmosSign(pubKeyBase64, message, sigBase64, prefix string) (string, bool) {
	pubBytes, err := base64.StdEncoding.DecodeString(pubKeyBase64)
	if err != nil {
		return "", false
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return "", false
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sigBase64)
	if err != nil {
		return "", false
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return "", false
	}

	digest := sha256.Sum256([]byte(message))
	if !sig.Verify(digest[:], pub) {
		return "", false
	}
	address, err := bech32AddressFromPubKey(pub, prefix)
	if err != nil {
		return "", false
	}
	return address, true
}
