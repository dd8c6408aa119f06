package app

import (
	"context"
	"testing"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/repository/memory"
)

func TestSeedSettings(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	seeded, err := SeedSettings(ctx, store, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(seeded) != 2 {
		t.Fatalf("seeded = %v, want both aggregates", seeded)
	}

	custom := domain.DefaultCatalogSettings()
	custom.ATSBrandCode = "XYZ"
	if err := store.SaveCatalogSettings(ctx, custom); err != nil {
		t.Fatal(err)
	}
	if seeded, err = SeedSettings(ctx, store, false); err != nil || len(seeded) != 0 {
		t.Fatalf("second seed = %v, %v; want nothing written", seeded, err)
	}
	got, _ := store.CatalogSettings(ctx)
	if got.ATSBrandCode != "XYZ" {
		t.Errorf("ATSBrandCode = %q, existing settings were overwritten", got.ATSBrandCode)
	}

	if seeded, err = SeedSettings(ctx, store, true); err != nil || len(seeded) != 2 {
		t.Fatalf("forced seed = %v, %v", seeded, err)
	}
	got, _ = store.CatalogSettings(ctx)
	if got.ATSBrandCode != domain.DefaultCatalogSettings().ATSBrandCode {
		t.Errorf("ATSBrandCode = %q after forced seed", got.ATSBrandCode)
	}
}
