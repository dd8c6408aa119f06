package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/repository"
)

type settingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) repository.SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) BreakdownSettings(ctx context.Context) (*domain.BreakdownSettings, error) {
	var s domain.BreakdownSettings
	if err := r.load(ctx, domain.SettingsBreakdownNetSales, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) SaveBreakdownSettings(ctx context.Context, s domain.BreakdownSettings) error {
	return r.save(ctx, domain.SettingsBreakdownNetSales, s)
}

func (r *settingsRepository) CatalogSettings(ctx context.Context) (*domain.CatalogSettings, error) {
	var s domain.CatalogSettings
	if err := r.load(ctx, domain.SettingsCatalog, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) SaveCatalogSettings(ctx context.Context, s domain.CatalogSettings) error {
	return r.save(ctx, domain.SettingsCatalog, s)
}

func (r *settingsRepository) NextATSSKUNumber(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n,
		`UPDATE counters SET value = value + 1 WHERE name = 'ats_sku_number' RETURNING value`)
	if err != nil {
		return 0, fmt.Errorf("failed to increment ats sku number: %w", err)
	}
	return n, nil
}

func (r *settingsRepository) load(ctx context.Context, name string, dst interface{}) error {
	var raw []byte
	err := r.db.GetContext(ctx, &raw, `SELECT value FROM settings WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s settings: %w", name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode %s settings: %w", name, err)
	}
	return nil
}

func (r *settingsRepository) save(ctx context.Context, name string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s settings: %w", name, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (name, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		name, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s settings: %w", name, err)
	}
	return nil
}
