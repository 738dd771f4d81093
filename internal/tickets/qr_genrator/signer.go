package qr

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ms-fulfillment/internal/models"
)

var ErrEmptySecret = errors.New("artifact signing secret is empty")

// Signer computes the keyed hash embedded in every artifact payload.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns hex(HMAC-SHA256(secret, canonical payload)). The Hash field is ignored.
func (s *Signer) Sign(p models.ArtifactPayload) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical(p)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares p.Hash against a fresh signature in constant time.
func (s *Signer) Verify(p models.ArtifactPayload) bool {
	got, err := hex.DecodeString(p.Hash)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.Sign(p))
	return hmac.Equal(got, want)
}

func canonical(p models.ArtifactPayload) string {
	return strings.Join([]string{
		strconv.FormatInt(p.OrderItemID, 10),
		strconv.FormatInt(p.OrderID, 10),
		strconv.FormatInt(p.UserID, 10),
		strconv.FormatInt(p.EventID, 10),
		string(p.ItemKind),
		optionalID(p.ItemRefID),
		optionalID(p.SlotRefID),
		p.ScannableCode,
	}, "|")
}

func optionalID(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// EncodePayload serializes a payload exactly as it is embedded in the QR.
func EncodePayload(p models.ArtifactPayload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses a scanned payload, rejecting unknown fields and trailing data.
func DecodePayload(raw []byte) (models.ArtifactPayload, error) {
	var p models.ArtifactPayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if dec.More() {
		return p, errors.New("decode payload: trailing data")
	}
	if p.OrderItemID <= 0 || p.Hash == "" {
		return p, errors.New("decode payload: missing order_item_id or hash")
	}
	return p, nil
}
