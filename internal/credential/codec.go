// Package credential encodes the QR payload that identifies one issued ticket
// unit and decodes it back at the gate without a second lookup service.
package credential

import (
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Version is authenticated as additional data; bump it when the plaintext
// layout changes.
const Version byte = 0x01

const (
	keySize      = chacha20poly1305.KeySize
	overhead     = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	fieldSep     = "|"
	minSecretLen = 16
)

var (
	hkdfInfoSeal  = []byte("ticket.credential.seal.v1")
	hkdfInfoNonce = []byte("ticket.credential.nonce.v1")
)

type Claims struct {
	IntentID uuid.UUID
	UnitID   int64
	IssuedAt time.Time
}

// Codec is safe for concurrent use. It holds only keys derived once from the
// configured secret.
type Codec struct {
	sealKey  [keySize]byte
	nonceKey [keySize]byte
}

func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < minSecretLen {
		return nil, errors.Newf("credential secret must be at least %d bytes", minSecretLen)
	}
	c := &Codec{}
	if err := derive(secret, hkdfInfoSeal, c.sealKey[:]); err != nil {
		return nil, err
	}
	if err := derive(secret, hkdfInfoNonce, c.nonceKey[:]); err != nil {
		return nil, err
	}
	return c, nil
}

func derive(secret, info, out []byte) error {
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, info), out); err != nil {
		return errors.Wrap(err, "derive credential key")
	}
	return nil
}

// Encode seals intentID|unitID|issuedAt. The nonce is a keyed hash of the
// plaintext, so equal inputs always produce the same payload.
func (c *Codec) Encode(intentID uuid.UUID, unitID int64, issuedAt time.Time) (string, error) {
	if unitID <= 0 {
		return "", errors.Newf("unit id must be positive, got %d", unitID)
	}
	plaintext := []byte(intentID.String() + fieldSep +
		strconv.FormatInt(unitID, 10) + fieldSep +
		strconv.FormatInt(issuedAt.Unix(), 10))

	aead, err := chacha20poly1305.NewX(c.sealKey[:])
	if err != nil {
		return "", errors.Wrap(err, "create XChaCha20-Poly1305 cipher")
	}

	nonce, err := c.syntheticNonce(plaintext)
	if err != nil {
		return "", err
	}

	out := make([]byte, 1+len(nonce), overhead+len(plaintext))
	out[0] = Version
	copy(out[1:], nonce)
	out = aead.Seal(out, nonce, plaintext, []byte{Version})
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *Codec) syntheticNonce(plaintext []byte) ([]byte, error) {
	h, err := blake3.NewKeyed(c.nonceKey[:])
	if err != nil {
		return nil, errors.Wrap(err, "create keyed hash")
	}
	_, _ = h.Write(plaintext)
	return h.Sum(nil)[:chacha20poly1305.NonceSizeX], nil
}

// Decode reverses Encode. Every failure is marked domain.ErrMalformedCredential;
// whether the identifiers exist is for the caller to find out.
func (c *Codec) Decode(payload string) (Claims, error) {
	blob, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return Claims{}, domain.MalformedCredentialf("credential is not base64url")
	}
	if len(blob) < overhead {
		return Claims{}, domain.MalformedCredentialf("credential is %d bytes, minimum is %d", len(blob), overhead)
	}
	if blob[0] != Version {
		return Claims{}, domain.MalformedCredentialf("credential version %d is not supported", blob[0])
	}

	aead, err := chacha20poly1305.NewX(c.sealKey[:])
	if err != nil {
		return Claims{}, errors.Wrap(err, "create XChaCha20-Poly1305 cipher")
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return Claims{}, domain.MalformedCredentialf("credential failed authentication")
	}

	return parseClaims(string(plaintext))
}

func parseClaims(s string) (Claims, error) {
	fields := strings.Split(s, fieldSep)
	if len(fields) != 3 {
		return Claims{}, domain.MalformedCredentialf("credential has %d fields, want 3", len(fields))
	}
	intentID, err := uuid.Parse(fields[0])
	if err != nil {
		return Claims{}, domain.MalformedCredentialf("credential intent id is invalid")
	}
	unitID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || unitID <= 0 {
		return Claims{}, domain.MalformedCredentialf("credential unit id is invalid")
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Claims{}, domain.MalformedCredentialf("credential timestamp is invalid")
	}
	return Claims{IntentID: intentID, UnitID: unitID, IssuedAt: time.Unix(ts, 0).UTC()}, nil
}
