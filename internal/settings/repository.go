package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/postgrest"
	"github.com/shopspring/decimal"
)

const (
	TableSystemSettings       = "system_settings"
	KeyOrganizationPercentage = "organization_percentage"
)

// Repository reads and writes the system_settings row. Values are percent strings ("20").
type Repository struct {
	client *postgrest.Client
}

func NewRepository(client *postgrest.Client) *Repository {
	return &Repository{client: client}
}

type settingRow struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// GetPercentage returns the stored percent and whether a usable row exists.
func (r *Repository) GetPercentage(ctx context.Context) (decimal.Decimal, bool, error) {
	var rows []settingRow
	err := r.client.From(TableSystemSettings).
		Select("key, value").
		Eq("key", KeyOrganizationPercentage).
		Limit(1).
		Into(ctx, &rows)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get organization percentage: %w", err)
	}
	if len(rows) == 0 || strings.TrimSpace(rows[0].Value) == "" {
		return decimal.Zero, false, nil
	}

	pct, err := decimal.NewFromString(strings.TrimSpace(rows[0].Value))
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse organization percentage %q: %w", rows[0].Value, err)
	}
	return pct, true, nil
}

// SavePercentage upserts the percent.
func (r *Repository) SavePercentage(ctx context.Context, pct decimal.Decimal) error {
	row := settingRow{
		Key:       KeyOrganizationPercentage,
		Value:     pct.String(),
		UpdatedAt: time.Now().In(periods.Manila).Format(time.RFC3339),
	}
	if _, err := r.client.From(TableSystemSettings).Upsert(row, "key").Execute(ctx); err != nil {
		return fmt.Errorf("save organization percentage: %w", err)
	}
	return nil
}
