package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/jmoiron/sqlx"
)

type poRepository struct {
	db *DB
}

func NewPurchaseOrderRepository(db *DB) repository.PurchaseOrderRepository {
	return &poRepository{db: db}
}

type poRow struct {
	ID                 int64          `db:"id"`
	Name               string         `db:"name"`
	IsATS              bool           `db:"is_ats"`
	Currency           string         `db:"currency"`
	CurrencyConversion float64        `db:"currency_conversion"`
	DateCreated        time.Time      `db:"date_created"`
	Status             string         `db:"status"`
	LastStage          string         `db:"last_stage"`
	WorksheetID        sql.NullString `db:"worksheet_id"`
	ShippingFee        float64        `db:"shipping_fee"`
	CustomsFee         float64        `db:"customs_fee"`
	OtherFee           float64        `db:"other_fee"`
	ExternalPOID       sql.NullInt64  `db:"external_po_id"`
	CatalogJobID       sql.NullInt64  `db:"catalog_job_id"`
	PendingCatalogSKUs []byte         `db:"pending_catalog_skus"`
}

type logRow struct {
	PurchaseOrderID int64     `db:"purchase_order_id"`
	UserName        string    `db:"user_name"`
	Message         string    `db:"message"`
	Category        string    `db:"category"`
	CreatedAt       time.Time `db:"created_at"`
}

const poColumns = `id, name, is_ats, currency, currency_conversion, date_created, status,
	last_stage, worksheet_id, shipping_fee, customs_fee, other_fee, external_po_id, catalog_job_id,
	pending_catalog_skus`

func (r poRow) toDomain() (*domain.PurchaseOrder, error) {
	po := &domain.PurchaseOrder{
		ID:                 r.ID,
		Name:               r.Name,
		IsATS:              r.IsATS,
		Currency:           r.Currency,
		CurrencyConversion: r.CurrencyConversion,
		DateCreated:        r.DateCreated,
		Status:             domain.Status(r.Status),
		LastStage:          domain.Stage(r.LastStage),
		AdditionalFees: domain.AdditionalFees{
			Shipping: r.ShippingFee,
			Customs:  r.CustomsFee,
			Other:    r.OtherFee,
		},
	}
	if r.WorksheetID.Valid {
		v := r.WorksheetID.String
		po.WorksheetID = &v
	}
	if r.ExternalPOID.Valid {
		v := r.ExternalPOID.Int64
		po.ExternalPOID = &v
	}
	if r.CatalogJobID.Valid {
		v := r.CatalogJobID.Int64
		po.CatalogJobID = &v
	}
	if len(r.PendingCatalogSKUs) > 0 {
		if err := json.Unmarshal(r.PendingCatalogSKUs, &po.PendingCatalogSKUs); err != nil {
			return nil, fmt.Errorf("failed to decode pending catalog skus of purchase order %d: %w", r.ID, err)
		}
	}
	return po, nil
}

func (l logRow) toDomain() domain.LogEntry {
	return domain.LogEntry{
		User:      l.UserName,
		Message:   l.Message,
		Category:  domain.LogCategory(l.Category),
		Timestamp: l.CreatedAt,
	}
}

func (r *poRepository) Create(ctx context.Context, in domain.NewPurchaseOrder) (*domain.PurchaseOrder, error) {
	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	conversion := in.CurrencyConversion
	if conversion == 0 {
		conversion = 1
	}

	var row poRow
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		err := tx.GetContext(ctx, &id,
			`UPDATE counters SET value = value + 1 WHERE name = 'purchase_order_id' RETURNING value`)
		if err != nil {
			return fmt.Errorf("failed to allocate purchase order id: %w", err)
		}

		query := `
			INSERT INTO purchase_orders (id, name, is_ats, currency, currency_conversion, status, last_stage)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING ` + poColumns
		return tx.GetContext(ctx, &row, query,
			id, in.Name, in.IsATS, currency, conversion,
			string(domain.StatusCreatingWorksheet), string(domain.StageCreateWorksheet),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase order: %w", err)
	}
	return row.toDomain()
}

func (r *poRepository) Get(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	var row poRow
	err := r.db.GetContext(ctx, &row, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase order %d: %w", id, err)
	}

	var logs []logRow
	err = r.db.SelectContext(ctx, &logs, `
		SELECT purchase_order_id, user_name, message, category, created_at
		FROM purchase_order_logs
		WHERE purchase_order_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for purchase order %d: %w", id, err)
	}

	po, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		po.Logs = append(po.Logs, l.toDomain())
	}
	return po, nil
}

func (r *poRepository) List(ctx context.Context) ([]*domain.PurchaseOrder, error) {
	var rows []poRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+poColumns+` FROM purchase_orders ORDER BY id DESC`); err != nil {
		return nil, fmt.Errorf("failed to list purchase orders: %w", err)
	}

	var logs []logRow
	err := r.db.SelectContext(ctx, &logs, `
		SELECT purchase_order_id, user_name, message, category, created_at
		FROM purchase_order_logs
		ORDER BY purchase_order_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase order logs: %w", err)
	}
	byOrder := make(map[int64][]domain.LogEntry)
	for _, l := range logs {
		byOrder[l.PurchaseOrderID] = append(byOrder[l.PurchaseOrderID], l.toDomain())
	}

	out := make([]*domain.PurchaseOrder, 0, len(rows))
	for _, row := range rows {
		po, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		po.Logs = byOrder[po.ID]
		out = append(out, po)
	}
	return out, nil
}

func (r *poRepository) Update(ctx context.Context, id int64, upd domain.PurchaseOrderUpdate) (*domain.PurchaseOrder, error) {
	var shipping, customs, other *float64
	if upd.AdditionalFees != nil {
		shipping, customs, other = &upd.AdditionalFees.Shipping, &upd.AdditionalFees.Customs, &upd.AdditionalFees.Other
	}
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE purchase_orders SET
			name = COALESCE($2, name),
			currency = COALESCE($3, currency),
			currency_conversion = COALESCE($4, currency_conversion),
			shipping_fee = COALESCE($5, shipping_fee),
			customs_fee = COALESCE($6, customs_fee),
			other_fee = COALESCE($7, other_fee),
			external_po_id = COALESCE($8, external_po_id),
			status = COALESCE($9, status),
			updated_at = NOW()
		WHERE id = $1`,
		id, upd.Name, upd.Currency, upd.CurrencyConversion, shipping, customs, other, upd.ExternalPOID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase order %d: %w", id, err)
	}
	if err := expectOne(res); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *poRepository) SetWorksheet(ctx context.Context, id int64, worksheetID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE purchase_orders SET worksheet_id = $2, updated_at = NOW()
		WHERE id = $1 AND worksheet_id IS NULL`, id, worksheetID)
	if err != nil {
		return fmt.Errorf("failed to set worksheet for purchase order %d: %w", id, err)
	}
	if err := expectOne(res); err != nil {
		if errors.Is(err, repository.ErrNotFound) && r.exists(ctx, id) {
			return repository.ErrWorksheetAlreadySet
		}
		return err
	}
	return nil
}

func (r *poRepository) SetStatus(ctx context.Context, id int64, status domain.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to set status for purchase order %d: %w", id, err)
	}
	return expectOne(res)
}

func (r *poRepository) CompareAndSetStatus(ctx context.Context, id int64, expected, next domain.Status, stage domain.Stage) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $3, last_stage = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, string(expected), string(next), string(stage))
	if err != nil {
		return fmt.Errorf("failed to move purchase order %d to %q: %w", id, next, err)
	}
	if err := expectOne(res); err != nil {
		if errors.Is(err, repository.ErrNotFound) && r.exists(ctx, id) {
			return repository.ErrStatusConflict
		}
		return err
	}
	return nil
}

func (r *poRepository) SetExternalPOID(ctx context.Context, id int64, externalID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchase_orders SET external_po_id = $2, updated_at = NOW() WHERE id = $1`, id, externalID)
	if err != nil {
		return fmt.Errorf("failed to set downstream id for purchase order %d: %w", id, err)
	}
	return expectOne(res)
}

func (r *poRepository) SetCatalogJobID(ctx context.Context, id int64, jobID *int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchase_orders SET catalog_job_id = $2, updated_at = NOW() WHERE id = $1`, id, jobID)
	if err != nil {
		return fmt.Errorf("failed to set catalog job for purchase order %d: %w", id, err)
	}
	return expectOne(res)
}

func (r *poRepository) SetPendingCatalogSKUs(ctx context.Context, id int64, systemIDs map[string]string) error {
	var raw []byte
	if len(systemIDs) > 0 {
		var err error
		if raw, err = json.Marshal(systemIDs); err != nil {
			return fmt.Errorf("failed to encode pending catalog skus: %w", err)
		}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchase_orders SET pending_catalog_skus = $2, updated_at = NOW() WHERE id = $1`, id, raw)
	if err != nil {
		return fmt.Errorf("failed to set pending catalog skus for purchase order %d: %w", id, err)
	}
	return expectOne(res)
}

func (r *poRepository) AppendLog(ctx context.Context, id int64, entry domain.LogEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_order_logs (purchase_order_id, user_name, message, category, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, entry.User, entry.Message, string(entry.Category), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to append log to purchase order %d: %w", id, err)
	}
	return nil
}

func (r *poRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete purchase order %d: %w", id, err)
	}
	return expectOne(res)
}

func (r *poRepository) exists(ctx context.Context, id int64) bool {
	var found bool
	err := r.db.GetContext(ctx, &found, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE id = $1)`, id)
	return err == nil && found
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not read affected rows: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
