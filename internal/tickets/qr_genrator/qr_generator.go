package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// RenderError is returned when a payload cannot be turned into a QR image.
type RenderError struct {
	OrderItemID int64
	Err         error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render artifact for order item %d: %v", e.OrderItemID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

type QRGenerator struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewQRGenerator() *QRGenerator {
	return &QRGenerator{Size: 256, Level: qrcode.Medium}
}

// Render encodes content as a PNG QR code.
func (q *QRGenerator) Render(orderItemID int64, content []byte) ([]byte, error) {
	if len(content) == 0 {
		return nil, &RenderError{OrderItemID: orderItemID, Err: fmt.Errorf("empty content")}
	}
	png, err := qrcode.Encode(string(content), q.Level, q.Size)
	if err != nil {
		return nil, &RenderError{OrderItemID: orderItemID, Err: err}
	}
	return png, nil
}
