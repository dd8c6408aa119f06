package refdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/po-tool/internal/cache"
	"github.com/andresuchdata/po-tool/internal/notify"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/internal/retry"
	"github.com/rs/zerolog/log"
)

// Cache names used by the admin endpoints and snapshot keys.
const (
	CacheMarketplaces = "marketplaces"
	CacheListPrices   = "list_prices"
	CacheItemTypes    = "item_types"
	CacheBrandCodes   = "brand_codes"
	CacheValidSizes   = "valid_sizes"
	CacheSalesReports = "sales_reports"
)

var ErrUnknownCache = errors.New("unknown cache")

// Refresher is the type-erased view of a Table.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context) error
	Restore(ctx context.Context) error
	Status() Status
}

// ServiceConfig tunes every table the service owns.
type ServiceConfig struct {
	MaxAge  time.Duration
	Retries int
	// MaxRetryDelay caps the exponential backoff between refresh attempts.
	MaxRetryDelay time.Duration
	Snapshots     cache.SnapshotStore
	Now           func() time.Time
}

// Service owns the process-wide reference tables and keeps them fresh.
type Service struct {
	src       Sources
	settings  repository.SettingsRepository
	notifier  notify.Notifier
	snapshots cache.SnapshotStore

	Marketplaces *Table[map[string]string]
	ListPrices   *Table[map[string]float64]
	ItemTypes    *Table[map[string]ItemType]
	BrandCodes   *Table[map[string]string]
	ValidSizes   *Table[SizeSet]
	SalesReports *Table[SalesReport]

	// refresh order: sales reports join against marketplaces and list prices
	order  []Refresher
	byName map[string]Refresher
}

func NewService(src Sources, settings repository.SettingsRepository, notifier notify.Notifier, cfg ServiceConfig) *Service {
	if notifier == nil {
		notifier = notify.NewNoopNotifier()
	}
	if cfg.Snapshots == nil {
		cfg.Snapshots = cache.NewNoopSnapshotStore()
	}
	opts := Options{MaxAge: cfg.MaxAge, Snapshots: cfg.Snapshots, Now: cfg.Now}
	if cfg.Retries > 0 {
		opts.Retry = retry.Exponential(cfg.Retries)
		opts.Retry.Max = cfg.MaxRetryDelay
	}

	s := &Service{src: src, settings: settings, notifier: notifier, snapshots: cfg.Snapshots}
	s.Marketplaces = NewTable(CacheMarketplaces, s.loadMarketplaces, opts)
	s.ListPrices = NewTable(CacheListPrices, func(ctx context.Context) (map[string]float64, error) {
		return LoadListPrices(ctx, s.src)
	}, opts)
	s.ItemTypes = NewTable(CacheItemTypes, func(ctx context.Context) (map[string]ItemType, error) {
		return LoadItemTypes(ctx, s.src)
	}, opts)
	s.BrandCodes = NewTable(CacheBrandCodes, func(ctx context.Context) (map[string]string, error) {
		return LoadBrandCodes(ctx, s.src)
	}, opts)
	s.ValidSizes = NewTable(CacheValidSizes, func(ctx context.Context) (SizeSet, error) {
		return LoadValidSizes(ctx, s.src)
	}, opts)
	s.SalesReports = NewTable(CacheSalesReports, s.loadSalesReports, opts)

	s.order = []Refresher{s.Marketplaces, s.ListPrices, s.ItemTypes, s.BrandCodes, s.ValidSizes, s.SalesReports}
	s.byName = make(map[string]Refresher, len(s.order))
	for _, r := range s.order {
		s.byName[r.Name()] = r
	}
	return s
}

func (s *Service) loadMarketplaces(ctx context.Context) (map[string]string, error) {
	settings, err := s.settings.BreakdownSettings(ctx)
	if err != nil {
		return nil, err
	}
	return LoadMarketplaces(ctx, s.src, settings.MarketplaceGroups)
}

func (s *Service) loadSalesReports(ctx context.Context) (SalesReport, error) {
	settings, err := s.settings.BreakdownSettings(ctx)
	if err != nil {
		return SalesReport{}, err
	}
	prices, err := s.ListPrices.Get()
	if err != nil {
		return SalesReport{}, err
	}
	marketplaces, err := s.Marketplaces.Get()
	if err != nil {
		return SalesReport{}, err
	}
	return LoadSalesReport(ctx, s.src, SalesInputs{
		Months:       settings.SalesHistoryMonths,
		ListPrices:   prices,
		Marketplaces: marketplaces,
	})
}

// Aliases reads the created-SKU index. It is not cached: SKU assignment must
// see SKUs created moments ago.
func (s *Service) Aliases(ctx context.Context) (Aliases, error) {
	var out Aliases
	err := retry.Do(ctx, retry.Exponential(5), func(ctx context.Context, attempt int) error {
		a, err := LoadAliases(ctx, s.src)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("could not read aliases")
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return Aliases{}, fmt.Errorf("could not retrieve aliases/created SKUs: %w", err)
	}
	return out, nil
}

// Refresh refreshes one cache by name.
func (s *Service) Refresh(ctx context.Context, name string) error {
	r, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCache, name)
	}
	return s.refresh(ctx, r)
}

// RefreshAll refreshes every cache in dependency order. A failed cache does not
// stop the others.
func (s *Service) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, r := range s.order {
		if err := s.refresh(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) refresh(ctx context.Context, r Refresher) error {
	err := r.Refresh(ctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	log.Error().Err(err).Str("cache", r.Name()).Msg("cache update failed")
	subject := fmt.Sprintf("PO Tool %s Update Error", r.Name())
	if nerr := s.notifier.Notify(ctx, subject, err.Error()); nerr != nil {
		log.Warn().Err(nerr).Str("cache", r.Name()).Msg("could not send cache error email")
	}
	return err
}

// RestoreAll seeds every table from persisted snapshots.
func (s *Service) RestoreAll(ctx context.Context) {
	for _, r := range s.order {
		if err := r.Restore(ctx); err != nil {
			log.Warn().Err(err).Str("cache", r.Name()).Msg("could not restore cache snapshot")
		}
	}
}

// Status returns the refresh state of one cache.
func (s *Service) Status(name string) (Status, error) {
	r, ok := s.byName[name]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownCache, name)
	}
	return r.Status(), nil
}

func (s *Service) Statuses() []Status {
	out := make([]Status, 0, len(s.order))
	for _, r := range s.order {
		out = append(out, r.Status())
	}
	return out
}

// ClearSnapshots drops every persisted snapshot. Loaded tables keep serving
// until their next refresh; a restart then starts from an empty cache.
func (s *Service) ClearSnapshots(ctx context.Context) (int, error) {
	n, err := s.snapshots.Clear(ctx)
	if err != nil {
		return n, fmt.Errorf("clear cache snapshots: %w", err)
	}
	return n, nil
}

// Run refreshes every cache now and then once per interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Dur("next_in", interval).Msg("reference caches partially updated")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("cache refresh loop stopped")
			return
		case <-ticker.C:
		}
	}
}
