package main

import (
	"context"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/storage"
	"github.com/raterudder/balancepoint/pkg/types"
)

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	siteID := lflag.String("seed-site-id", types.SiteIDNone, "site to seed")
	history := lflag.Duration("seed-history", 365*24*time.Hour, "how much history to seed, rounded to whole days")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data", "siteID", *siteID, "history", history.String())

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Simulated house
	const (
		BaseloadWh          = 800.0 // per hour
		HeatingBalanceF     = 55.0
		CoolingBalanceF     = 65.0
		HeatingWhPerDegree  = 45.0 // per hour per °F below the balance point
		CoolingWhPerDegree  = 60.0 // per hour per °F above the balance point
		AnnualMeanF         = 55.0
		AnnualSwingF        = 25.0
		DiurnalSwingF       = 8.0
		ColdestDayOfYear    = 20
		UsageNoiseFraction  = 0.1
		TemperatureNoiseStd = 2.0
	)

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.Add(-history.Truncate(24 * time.Hour))

	var usage, temps types.Series
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		season := 2 * math.Pi * float64(t.YearDay()-ColdestDayOfYear) / 365
		// warmest mid-afternoon, coldest before dawn
		diurnal := 2 * math.Pi * float64(t.Hour()-15) / 24
		temp := AnnualMeanF - AnnualSwingF*math.Cos(season) + DiurnalSwingF*math.Cos(diurnal) + rng.NormFloat64()*TemperatureNoiseStd

		wh := BaseloadWh
		if temp < HeatingBalanceF {
			wh += (HeatingBalanceF - temp) * HeatingWhPerDegree
		}
		if temp > CoolingBalanceF {
			wh += (temp - CoolingBalanceF) * CoolingWhPerDegree
		}
		wh *= 1 + (rng.Float64()*2-1)*UsageNoiseFraction

		usage = append(usage, types.Point{TS: t, Value: math.Round(wh)})
		temps = append(temps, types.Point{TS: t, Value: math.Round(temp*10) / 10})
	}

	if *siteID != types.SiteIDNone {
		err := s.CreateSite(ctx, *siteID, types.Site{ID: *siteID, Name: "Seeded Site"})
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to create site, it may already exist", "error", err)
		}
	}

	settings, _, err := types.MigrateSettings(types.Settings{}, 0)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build default settings", "error", err)
		os.Exit(1)
	}
	if err := s.SetSettings(ctx, *siteID, settings, types.CurrentSettingsVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed settings", "error", err)
		os.Exit(1)
	}
	if err := s.UpsertUsage(ctx, *siteID, usage); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed usage", "error", err)
		os.Exit(1)
	}
	if err := s.UpsertTemperatures(ctx, *siteID, temps); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed temperatures", "error", err)
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data", "usage", len(usage), "temperatures", len(temps))
}
