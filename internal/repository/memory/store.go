package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/repository"
)

// Store is an in-process implementation of both repositories.
type Store struct {
	mu        sync.Mutex
	nextID    int64
	orders    map[int64]*domain.PurchaseOrder
	breakdown *domain.BreakdownSettings
	catalog   *domain.CatalogSettings
	atsNumber int64
}

func NewStore() *Store {
	return &Store{orders: make(map[int64]*domain.PurchaseOrder)}
}

// WithSettings seeds both settings aggregates.
func (s *Store) WithSettings(b domain.BreakdownSettings, c domain.CatalogSettings) *Store {
	s.breakdown = &b
	s.catalog = &c
	return s
}

// WithATSSKUNumber seeds the ATS SKU counter.
func (s *Store) WithATSSKUNumber(n int64) *Store {
	s.atsNumber = n
	return s
}

// Put stores po as-is. Tests use it to place orders in arbitrary states.
func (s *Store) Put(po *domain.PurchaseOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(po)
	s.orders[po.ID] = cp
	if po.ID > s.nextID {
		s.nextID = po.ID
	}
}

func (s *Store) Create(ctx context.Context, in domain.NewPurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	po := &domain.PurchaseOrder{
		ID:                 s.nextID,
		Name:               in.Name,
		IsATS:              in.IsATS,
		Currency:           in.Currency,
		CurrencyConversion: in.CurrencyConversion,
		DateCreated:        time.Now().UTC(),
		Status:             domain.StatusCreatingWorksheet,
		LastStage:          domain.StageCreateWorksheet,
	}
	s.orders[po.ID] = po
	return clone(po), nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(po), nil
}

func (s *Store) List(ctx context.Context) ([]*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.PurchaseOrder, 0, len(s.orders))
	for _, po := range s.orders {
		out = append(out, clone(po))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) Update(ctx context.Context, id int64, upd domain.PurchaseOrderUpdate) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Name != nil {
		po.Name = *upd.Name
	}
	if upd.Currency != nil {
		po.Currency = *upd.Currency
	}
	if upd.CurrencyConversion != nil {
		po.CurrencyConversion = *upd.CurrencyConversion
	}
	if upd.AdditionalFees != nil {
		po.AdditionalFees = *upd.AdditionalFees
	}
	if upd.ExternalPOID != nil {
		v := *upd.ExternalPOID
		po.ExternalPOID = &v
	}
	if upd.Status != nil {
		po.Status = *upd.Status
	}
	return clone(po), nil
}

func (s *Store) SetWorksheet(ctx context.Context, id int64, worksheetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if po.WorksheetID != nil {
		return repository.ErrWorksheetAlreadySet
	}
	po.WorksheetID = &worksheetID
	return nil
}

func (s *Store) SetStatus(ctx context.Context, id int64, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	po.Status = status
	return nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, expected, next domain.Status, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if po.Status != expected {
		return repository.ErrStatusConflict
	}
	po.Status = next
	po.LastStage = stage
	return nil
}

func (s *Store) SetExternalPOID(ctx context.Context, id int64, externalID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	po.ExternalPOID = &externalID
	return nil
}

func (s *Store) SetCatalogJobID(ctx context.Context, id int64, jobID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if jobID == nil {
		po.CatalogJobID = nil
		return nil
	}
	v := *jobID
	po.CatalogJobID = &v
	return nil
}

func (s *Store) AppendLog(ctx context.Context, id int64, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	po.Logs = append(po.Logs, entry)
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *Store) BreakdownSettings(ctx context.Context) (*domain.BreakdownSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breakdown == nil {
		return nil, repository.ErrNotFound
	}
	cp := *s.breakdown
	return &cp, nil
}

func (s *Store) SaveBreakdownSettings(ctx context.Context, b domain.BreakdownSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakdown = &b
	return nil
}

func (s *Store) CatalogSettings(ctx context.Context) (*domain.CatalogSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog == nil {
		return nil, repository.ErrNotFound
	}
	cp := *s.catalog
	return &cp, nil
}

func (s *Store) SaveCatalogSettings(ctx context.Context, c domain.CatalogSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = &c
	return nil
}

func (s *Store) NextATSSKUNumber(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atsNumber++
	return s.atsNumber, nil
}

func (s *Store) SetPendingCatalogSKUs(ctx context.Context, id int64, systemIDs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	po.PendingCatalogSKUs = copyIDs(systemIDs)
	return nil
}

func copyIDs(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clone(po *domain.PurchaseOrder) *domain.PurchaseOrder {
	cp := *po
	cp.Logs = append([]domain.LogEntry(nil), po.Logs...)
	cp.PendingCatalogSKUs = copyIDs(po.PendingCatalogSKUs)
	if po.WorksheetID != nil {
		v := *po.WorksheetID
		cp.WorksheetID = &v
	}
	if po.ExternalPOID != nil {
		v := *po.ExternalPOID
		cp.ExternalPOID = &v
	}
	if po.CatalogJobID != nil {
		v := *po.CatalogJobID
		cp.CatalogJobID = &v
	}
	return &cp
}
