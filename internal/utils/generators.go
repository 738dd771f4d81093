package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const uidAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateOrderUID returns a human-readable order code such as ORD-20250102-K7QX9M.
func GenerateOrderUID() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), randomCode(6))
}

func randomCode(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(uidAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			idx = big.NewInt(time.Now().UnixNano() % int64(len(uidAlphabet)))
		}
		buf[i] = uidAlphabet[idx.Int64()]
	}
	return string(buf)
}
