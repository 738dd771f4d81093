package discount

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"ms-fulfillment/internal/models"
)

var ErrNotFound = errors.New("discount not found")

// Store reads discounts from the shared database.
type Store struct {
	Bun *bun.DB
}

func (s *Store) GetByCode(ctx context.Context, code string) (*models.Discount, error) {
	var d models.Discount
	err := s.Bun.NewSelect().
		Model(&d).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get discount %s: %w", code, err)
	}
	return &d, nil
}
