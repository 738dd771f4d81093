package qr

import (
	"bytes"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-fulfillment/internal/models"
)

func samplePayload() models.ArtifactPayload {
	ref := int64(11)
	return models.ArtifactPayload{
		OrderItemID:   101,
		OrderID:       55,
		UserID:        1,
		EventID:       7,
		ItemKind:      models.ItemKindTicket,
		ItemRefID:     &ref,
		ScannableCode: models.ScannableCode(7, 101),
	}
}

func TestNewSignerRejectsEmptySecret(t *testing.T) {
	_, err := NewSigner("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestSignRoundTrip(t *testing.T) {
	s, err := NewSigner("top-secret")
	require.NoError(t, err)

	p := samplePayload()
	p.Hash = s.Sign(p)

	assert.Len(t, p.Hash, 64)
	assert.True(t, s.Verify(p))
	assert.Equal(t, p.Hash, s.Sign(p), "signing is deterministic")
}

func TestSignDetectsEveryFieldChange(t *testing.T) {
	s, err := NewSigner("top-secret")
	require.NoError(t, err)
	base := samplePayload()
	base.Hash = s.Sign(base)

	slot := int64(3)
	other := int64(12)
	mutations := map[string]func(p *models.ArtifactPayload){
		"order_item_id":  func(p *models.ArtifactPayload) { p.OrderItemID++ },
		"order_id":       func(p *models.ArtifactPayload) { p.OrderID++ },
		"user_id":        func(p *models.ArtifactPayload) { p.UserID++ },
		"event_id":       func(p *models.ArtifactPayload) { p.EventID++ },
		"item_kind":      func(p *models.ArtifactPayload) { p.ItemKind = models.ItemKindAddon },
		"item_ref_id":    func(p *models.ArtifactPayload) { p.ItemRefID = &other },
		"slot_ref_id":    func(p *models.ArtifactPayload) { p.SlotRefID = &slot },
		"scannable_code": func(p *models.ArtifactPayload) { p.ScannableCode = "EVT7-ITEM999" },
		"hash":           func(p *models.ArtifactPayload) { p.Hash = strings.Repeat("0", 64) },
		"hash not hex":   func(p *models.ArtifactPayload) { p.Hash = "zz" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			assert.False(t, s.Verify(p))
		})
	}
}

func TestDifferentSecretsDisagree(t *testing.T) {
	a, _ := NewSigner("secret-a")
	b, _ := NewSigner("secret-b")

	p := samplePayload()
	p.Hash = a.Sign(p)
	assert.False(t, b.Verify(p))
}

func TestEncodeDecodePayload(t *testing.T) {
	p := samplePayload()
	p.Hash = "abcd"

	raw, err := EncodePayload(p)
	require.NoError(t, err)
	assert.Equal(t,
		`{"order_item_id":101,"order_id":55,"user_id":1,"event_id":7,"item_kind":"ticket","item_ref_id":11,"slot_ref_id":null,"scannable_code":"EVT7-ITEM101","hash":"abcd"}`,
		string(raw))

	decoded, err := DecodePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestDecodePayloadRejectsJunk(t *testing.T) {
	for _, raw := range []string{
		``,
		`not json`,
		`{"order_item_id":1}`,
		`{"order_item_id":1,"hash":"ab","extra":true}`,
		`{"order_item_id":1,"hash":"ab"} {}`,
	} {
		_, err := DecodePayload([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestRenderProducesPNG(t *testing.T) {
	g := NewQRGenerator()

	img, err := g.Render(101, []byte(`{"order_item_id":101}`))
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
}

func TestRenderErrorIsTyped(t *testing.T) {
	g := NewQRGenerator()

	_, err := g.Render(101, nil)
	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, int64(101), renderErr.OrderItemID)

	// far beyond QR capacity
	_, err = g.Render(102, bytes.Repeat([]byte("x"), 8000))
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, int64(102), renderErr.OrderItemID)
}
