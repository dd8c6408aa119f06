package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/rs/zerolog/log"
)

// ErrInvalidInput wraps request problems the caller can fix.
var ErrInvalidInput = errors.New("invalid input")

// StageTrigger starts a pipeline stage in the background and returns its run id.
type StageTrigger interface {
	Trigger(ctx context.Context, poID int64, stage domain.Stage) (string, error)
}

type POService struct {
	orders   repository.PurchaseOrderRepository
	settings repository.SettingsRepository
	stages   StageTrigger
}

func NewPOService(orders repository.PurchaseOrderRepository, settings repository.SettingsRepository, stages StageTrigger) *POService {
	return &POService{orders: orders, settings: settings, stages: stages}
}

// Create stores a new purchase order and starts its worksheet creation.
func (s *POService) Create(ctx context.Context, in domain.NewPurchaseOrder) (*domain.PurchaseOrder, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.CurrencyConversion < 0 {
		return nil, fmt.Errorf("%w: currency conversion must not be negative", ErrInvalidInput)
	}
	po, err := s.orders.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase order: %w", err)
	}
	if _, err := s.stages.Trigger(ctx, po.ID, domain.StageCreateWorksheet); err != nil {
		log.Error().Err(err).Int64("po_id", po.ID).Msg("failed to start worksheet creation")
		return nil, err
	}
	return po, nil
}

func (s *POService) Get(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	return s.orders.Get(ctx, id)
}

func (s *POService) List(ctx context.Context) ([]*domain.PurchaseOrder, error) {
	return s.orders.List(ctx)
}

// Update edits the user-editable fields of a purchase order.
func (s *POService) Update(ctx context.Context, id int64, upd domain.PurchaseOrderUpdate) (*domain.PurchaseOrder, error) {
	if upd.Status != nil {
		if _, ok := domain.ParseStatus(string(*upd.Status)); !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *upd.Status)
		}
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if f := upd.AdditionalFees; f != nil && (f.Shipping < 0 || f.Customs < 0 || f.Other < 0) {
		return nil, fmt.Errorf("%w: additional fees must not be negative", ErrInvalidInput)
	}
	return s.orders.Update(ctx, id, upd)
}

func (s *POService) Delete(ctx context.Context, id int64) error {
	return s.orders.Delete(ctx, id)
}

// RunStage starts stage for the purchase order and returns the run id.
func (s *POService) RunStage(ctx context.Context, id int64, stage domain.Stage) (string, error) {
	if _, ok := domain.Transitions[stage]; !ok {
		return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, stage)
	}
	return s.stages.Trigger(ctx, id, stage)
}

// Undo moves the purchase order back one step of the workflow.
func (s *POService) Undo(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	po, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev, err := domain.UndoTarget(po.Status)
	if err != nil {
		return nil, err
	}
	if err := s.orders.CompareAndSetStatus(ctx, id, po.Status, prev, po.LastStage); err != nil {
		return nil, err
	}
	if err := s.orders.AppendLog(ctx, id, domain.InfoLog(fmt.Sprintf("Status reverted to %s.", prev))); err != nil {
		log.Warn().Err(err).Int64("po_id", id).Msg("failed to log undo")
	}
	return s.orders.Get(ctx, id)
}

func (s *POService) BreakdownSettings(ctx context.Context) (*domain.BreakdownSettings, error) {
	return s.settings.BreakdownSettings(ctx)
}

// PatchBreakdownSettings applies a partial update and stores the result if it validates.
func (s *POService) PatchBreakdownSettings(ctx context.Context, patch domain.BreakdownSettingsPatch) (*domain.BreakdownSettings, error) {
	current, err := s.settings.BreakdownSettings(ctx)
	if err != nil {
		return nil, err
	}
	next := patch.Apply(*current)
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.settings.SaveBreakdownSettings(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save breakdown settings: %w", err)
	}
	return &next, nil
}

func (s *POService) CatalogSettings(ctx context.Context) (*domain.CatalogSettings, error) {
	return s.settings.CatalogSettings(ctx)
}

// UpdateCatalogSettings replaces the catalog settings.
func (s *POService) UpdateCatalogSettings(ctx context.Context, in domain.CatalogSettings) (*domain.CatalogSettings, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.settings.SaveCatalogSettings(ctx, in); err != nil {
		return nil, fmt.Errorf("failed to save catalog settings: %w", err)
	}
	return &in, nil
}
