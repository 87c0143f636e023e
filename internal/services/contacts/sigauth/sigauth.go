// Package sigauth authenticates HTTP callers by wallet signature.
//
// A caller signs a canonical request digest with its wallet key using
// personal_sign (EIP-191 prefixed hashing). The server recovers the signing
// address from the signature and compares it against the address the caller
// claims, so no credential is stored server-side.
package sigauth

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	apperrors "github.com/walletbook/walletbook/internal/platform/errors"
)

const (
	// HeaderAddress carries the caller's claimed wallet address.
	HeaderAddress = "X-Walletbook-Address"
	// HeaderTimestamp carries the unix second the request was signed at.
	HeaderTimestamp = "X-Walletbook-Timestamp"
	// HeaderSignature carries the hex personal_sign signature of the digest.
	HeaderSignature = "X-Walletbook-Signature"

	// messagePrefix namespaces signed digests so a signature minted for the
	// contacts service cannot be replayed against another signer surface.
	messagePrefix = "walletbook-contacts"
)

// DefaultMaxSkew bounds how far a request timestamp may drift from server
// time in either direction.
const DefaultMaxSkew = 5 * time.Minute

// Verifier checks wallet signatures on incoming requests.
type Verifier struct {
	MaxSkew time.Duration
	Now     func() time.Time
}

// NewVerifier creates a verifier with the default skew window.
func NewVerifier() *Verifier {
	return &Verifier{MaxSkew: DefaultMaxSkew, Now: time.Now}
}

// Message renders the canonical string a caller signs for one request.
// The body hash commits the signature to the exact payload.
func Message(method, path string, body []byte, unixTS int64) string {
	bodyHash := sha256.Sum256(body)
	return strings.Join([]string{
		messagePrefix,
		method,
		path,
		hex.EncodeToString(bodyHash[:]),
		strconv.FormatInt(unixTS, 10),
	}, "|")
}

// Sign produces the request headers for a caller holding the given key.
// It exists for clients and tests; the server only ever verifies.
func Sign(key *ecdsa.PrivateKey, method, path string, body []byte, unixTS int64) (map[string]string, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	digest := accounts.TextHash([]byte(Message(method, path, body, unixTS)))
	signature, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	// Emit V as 27/28 the way wallet personal_sign implementations do.
	signature[crypto.RecoveryIDOffset] += 27
	address := crypto.PubkeyToAddress(key.PublicKey)
	return map[string]string{
		HeaderAddress:   address.Hex(),
		HeaderTimestamp: strconv.FormatInt(unixTS, 10),
		HeaderSignature: hexutil.Encode(signature),
	}, nil
}

// Verify authenticates one request and returns the caller's wallet address.
// The body must be the exact bytes the client sent.
func (v *Verifier) Verify(r *http.Request, body []byte) (common.Address, error) {
	if v == nil {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "signature verification is not configured")
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	maxSkew := v.MaxSkew
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}

	claimed := strings.TrimSpace(r.Header.Get(HeaderAddress))
	if claimed == "" {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "missing caller address header")
	}
	if !common.IsHexAddress(claimed) {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "caller address is not a wallet address")
	}

	rawTS := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	unixTS, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "invalid signature timestamp")
	}
	drift := now().UTC().Sub(time.Unix(unixTS, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > maxSkew {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "signature timestamp outside allowed window")
	}

	signature, err := hexutil.Decode(strings.TrimSpace(r.Header.Get(HeaderSignature)))
	if err != nil {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "invalid signature encoding")
	}
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "invalid signature length")
	}
	// personal_sign emits V as 27 or 28; recovery wants 0 or 1.
	if signature[crypto.RecoveryIDOffset] >= 27 {
		signature = append([]byte(nil), signature...)
		signature[crypto.RecoveryIDOffset] -= 27
	}

	digest := accounts.TextHash([]byte(Message(r.Method, r.URL.Path, body, unixTS)))
	publicKey, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "signature recovery failed")
	}
	recovered := crypto.PubkeyToAddress(*publicKey)
	if recovered != common.HexToAddress(claimed) {
		return common.Address{}, apperrors.New(apperrors.CodeCallerUnauthenticated, "signature does not match caller address")
	}
	return recovered, nil
}
