package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
)

// SettingsRepository stores per-company dispatch settings (pacing bounds and
// the message template pool).
type SettingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, companyID string) (*domain.DispatchSettings, error) {
	query := `
		SELECT company_id, delay_min_seconds, delay_max_seconds, group_base_seconds, group_jitter_seconds, templates, default_link, updated_at
		FROM dispatch_settings
		WHERE company_id = ?
	`

	var settings domain.DispatchSettings
	if err := r.db.GetContext(ctx, &settings, query, companyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dispatch settings: %w", err)
	}

	return &settings, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, settings *domain.DispatchSettings) error {
	query := `
		INSERT INTO dispatch_settings (company_id, delay_min_seconds, delay_max_seconds, group_base_seconds, group_jitter_seconds, templates, default_link, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE
			delay_min_seconds = VALUES(delay_min_seconds),
			delay_max_seconds = VALUES(delay_max_seconds),
			group_base_seconds = VALUES(group_base_seconds),
			group_jitter_seconds = VALUES(group_jitter_seconds),
			templates = VALUES(templates),
			default_link = VALUES(default_link),
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query,
		settings.CompanyID,
		settings.DelayMinSeconds,
		settings.DelayMaxSeconds,
		settings.GroupBaseSeconds,
		settings.GroupJitterSeconds,
		settings.Templates,
		settings.DefaultLink,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dispatch settings: %w", err)
	}

	return nil
}
