package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/types"
)

// initialTemperatureBackfill is how far back the first sync for a site reaches.
const initialTemperatureBackfill = 365 * 24 * time.Hour

type updateResponse struct {
	Stored int       `json:"stored"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)

	settings, err := s.getSettingsWithMigration(ctx, siteID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	res, err := s.updateTemperatures(ctx, siteID, settings.Settings, time.Now())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to update temperatures", slog.Any("error", err))
		writeJSONError(w, "failed to update temperatures", http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

// updateTemperatures fetches temperatures newer than the latest stored one
// (or the last year for a new site) up to the start of the current hour.
func (s *Server) updateTemperatures(ctx context.Context, siteID string, settings types.Settings, now time.Time) (updateResponse, error) {
	provider, err := s.weather.Site(ctx, siteID, settings)
	if err != nil {
		return updateResponse{}, fmt.Errorf("failed to get weather provider: %w", err)
	}

	latest, err := s.storage.GetLatestTemperatureTime(ctx, siteID)
	if err != nil {
		return updateResponse{}, fmt.Errorf("failed to get latest temperature time: %w", err)
	}

	end := now.UTC().Truncate(time.Hour)
	start := end.Add(-initialTemperatureBackfill)
	if !latest.IsZero() {
		// readings are hourly so the next one is an hour later
		start = latest.UTC().Add(time.Hour)
	}
	res := updateResponse{Start: start, End: end}
	if !end.After(start) {
		log.Ctx(ctx).DebugContext(ctx, "temperatures up to date", slog.Time("latest", latest))
		return res, nil
	}

	temps, err := provider.GetTemperatures(ctx, start, end)
	if err != nil {
		return updateResponse{}, fmt.Errorf("failed to get temperatures: %w", err)
	}
	if err := s.storage.UpsertTemperatures(ctx, siteID, temps); err != nil {
		return updateResponse{}, err
	}
	res.Stored = len(temps)

	log.Ctx(ctx).InfoContext(
		ctx,
		"synced temperatures",
		slog.Int("count", len(temps)),
		slog.Time("start", start),
		slog.Time("end", end),
	)
	return res, nil
}
