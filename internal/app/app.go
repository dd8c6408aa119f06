// Package app builds the process-wide dependency graph shared by the server
// and the command line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/po-tool/internal/api"
	"github.com/andresuchdata/po-tool/internal/cache"
	"github.com/andresuchdata/po-tool/internal/config"
	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/drive"
	"github.com/andresuchdata/po-tool/internal/lightspeed"
	"github.com/andresuchdata/po-tool/internal/notify"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/pipeline/breakdown"
	"github.com/andresuchdata/po-tool/internal/pipeline/finalize"
	"github.com/andresuchdata/po-tool/internal/pipeline/netsales"
	"github.com/andresuchdata/po-tool/internal/pipeline/skus"
	"github.com/andresuchdata/po-tool/internal/pipeline/worksheet"
	"github.com/andresuchdata/po-tool/internal/refdata"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/internal/repository/memory"
	"github.com/andresuchdata/po-tool/internal/repository/postgres"
	"github.com/andresuchdata/po-tool/internal/retry"
	"github.com/andresuchdata/po-tool/internal/sellercloud"
	"github.com/andresuchdata/po-tool/internal/service"
	"github.com/andresuchdata/po-tool/internal/sheets"
	"github.com/andresuchdata/po-tool/internal/storage"
	"github.com/andresuchdata/po-tool/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
)

// App holds the wired services.
type App struct {
	Config    *config.Config
	Orders    repository.PurchaseOrderRepository
	Settings  repository.SettingsRepository
	RefData   *refdata.Service
	Runner    *pipeline.Runner
	POService *service.POService

	closers []func() error
}

// New connects every backing service named by cfg and wires the pipeline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	locker := cache.NewMemoryLocker()
	snapshots := cache.NewNoopSnapshotStore()
	if cfg.Cache.Enabled {
		client, err := cache.NewRedisClient(cfg.Cache)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		locker = cache.NewRedisLocker(client, time.Duration(cfg.Cache.LockTTLSeconds)*time.Second)
		snapshots = cache.NewSnapshotStore(client, time.Duration(cfg.Cache.SnapshotTTLSeconds)*time.Second)
	}

	if cfg.Google.CredentialsJSON == "" {
		a.Close()
		return nil, errors.New("google credentials are required (GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE)")
	}
	files, err := drive.NewService(ctx, cfg.Google.CredentialsJSON)
	if err != nil {
		a.Close()
		return nil, err
	}
	store, err := sheets.NewGoogleStore(ctx, cfg.Google.CredentialsJSON)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier := notify.NewMailNotifier(cfg.Mail)
	a.RefData = refdata.NewService(refdata.Sources{
		Sheets:                  store,
		Drive:                   files,
		MarketplacesFileID:      cfg.Google.MarketplacesFileID,
		ListPricesSpreadsheetID: cfg.Google.ListPricesSpreadsheetID,
		ItemTypesSpreadsheetID:  cfg.Google.ItemTypesSpreadsheetID,
		BrandCodesSpreadsheetID: cfg.Google.BrandCodesSpreadsheetID,
		ValidSizesSpreadsheetID: cfg.Google.ValidSizesSpreadsheetID,
		AliasesSpreadsheetID:    cfg.Google.AliasesSpreadsheetID,
		SalesReportsFolderID:    cfg.Google.SalesReportsFolderID,
	}, a.Settings, notifier, refdata.ServiceConfig{
		MaxAge:        cfg.Pipeline.CacheMaxAge,
		Retries:       cfg.Pipeline.CacheRefreshRetries,
		MaxRetryDelay: cfg.Pipeline.CacheRetryMaxDelay,
		Snapshots:     snapshots,
	})

	stages, err := a.stages(ctx, files, store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Runner = pipeline.NewRunner(a.Orders, locker, notifier, stages...).
		Chain(domain.StageSKUs, domain.StatusSKUsCreated, domain.StageFinalize)
	a.POService = service.NewPOService(a.Orders, a.Settings, a.Runner)
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	switch a.Config.Database.Driver {
	case "memory":
		mem := memory.NewStore().WithSettings(domain.DefaultBreakdownSettings(), domain.DefaultCatalogSettings())
		a.Orders, a.Settings = mem, mem
		logger.Log.Warn().Msg("using in-memory record store; purchase orders are lost on restart")
		return nil
	case "postgres", "":
		db, err := postgres.NewDB(&a.Config.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db.DB.DB); err != nil {
			return err
		}
		a.Orders = postgres.NewPurchaseOrderRepository(db)
		a.Settings = postgres.NewSettingsRepository(db)
		_, err = SeedSettings(ctx, a.Settings, false)
		return err
	default:
		return fmt.Errorf("unknown database driver %q", a.Config.Database.Driver)
	}
}

func (a *App) stages(ctx context.Context, files *drive.Service, store sheets.Store) ([]pipeline.Stage, error) {
	cfg := a.Config
	refs := a.RefData

	creator := worksheet.NewCreator(files, a.Orders, worksheet.CreatorConfig{
		ATSTemplateID:    cfg.Google.ATSTemplateID,
		NonATSTemplateID: cfg.Google.NonATSTemplateID,
		FolderID:         cfg.Google.WorksheetFolderID,
		GrantEmails:      cfg.Google.GrantEmails,
		Retry:            retry.Exponential(cfg.Pipeline.WorksheetRetries),
	})
	validator := worksheet.NewValidator(store, refs.ItemTypes, refs.BrandCodes)

	catalog := sellercloud.NewClient(ctx, cfg.Sellercloud)
	pos := lightspeed.NewUploader(lightspeed.NewClient(cfg.Lightspeed), cfg.Lightspeed.MaxAttempts)
	skuStage := skus.NewStage(store, a.Orders, a.Settings, skus.References{
		BrandCodes: refs.BrandCodes,
		ItemTypes:  refs.ItemTypes,
		ValidSizes: refs.ValidSizes,
		Aliases:    refs,
	}, pos, catalog)
	if cfg.Storage.Enabled {
		archive, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to object storage: %w", err)
		}
		skuStage = skuStage.WithArchive(archive)
	}

	return []pipeline.Stage{
		creator,
		breakdown.NewStage(store, a.Settings, validator, refs.SalesReports),
		netsales.NewStage(store, a.Settings),
		skuStage,
		finalize.NewStage(store, a.Orders, catalog, finalize.Config{
			CompanyID:   cfg.Sellercloud.CompanyID,
			VendorID:    cfg.Sellercloud.VendorID,
			WarehouseID: cfg.Sellercloud.WarehouseID,
			JobPoll:     retry.Exponential(cfg.Sellercloud.JobPollAttempts),
		}),
	}, nil
}

// SeedSettings stores the default settings aggregates that are missing, or
// all of them when overwrite is set. It returns the names it wrote.
func SeedSettings(ctx context.Context, settings repository.SettingsRepository, overwrite bool) ([]string, error) {
	var seeded []string
	if _, err := settings.BreakdownSettings(ctx); overwrite || errors.Is(err, repository.ErrNotFound) {
		if err := settings.SaveBreakdownSettings(ctx, domain.DefaultBreakdownSettings()); err != nil {
			return seeded, fmt.Errorf("failed to seed breakdown settings: %w", err)
		}
		seeded = append(seeded, domain.SettingsBreakdownNetSales)
	} else if err != nil {
		return seeded, err
	}
	if _, err := settings.CatalogSettings(ctx); overwrite || errors.Is(err, repository.ErrNotFound) {
		if err := settings.SaveCatalogSettings(ctx, domain.DefaultCatalogSettings()); err != nil {
			return seeded, fmt.Errorf("failed to seed catalog settings: %w", err)
		}
		seeded = append(seeded, domain.SettingsCatalog)
	} else if err != nil {
		return seeded, err
	}
	return seeded, nil
}

// Router returns the HTTP handler with the cache admin routes mounted.
func (a *App) Router() *gin.Engine {
	admin := mux.NewRouter()
	refdata.NewHandler(a.RefData).RegisterRoutes(admin, "/api/dev/cache")
	return api.NewRouter(&api.Services{POService: a.POService, CacheAdmin: admin}, a.Config.Server.AllowedOrigins)
}

// Close releases the connections opened by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Log.Warn().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
}
