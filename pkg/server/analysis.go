package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/balancepoint/pkg/disaggregate"
	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/types"
)

const (
	defaultAnalysisRange = 90 * 24 * time.Hour
	maxAnalysisRange     = 3 * 365 * 24 * time.Hour
)

// history is the stored data an analysis runs over.
type history struct {
	usage, temps types.Series
	opts         disaggregate.Options
}

func (s *Server) loadHistory(ctx context.Context, siteID string, start, end time.Time) (history, error) {
	settings, err := s.getSettingsWithMigration(ctx, siteID)
	if err != nil {
		return history{}, fmt.Errorf("failed to get settings: %w", err)
	}
	loc, err := settings.Location()
	if err != nil {
		return history{}, err
	}

	usage, err := s.storage.GetUsageHistory(ctx, siteID, start, end)
	if err != nil {
		return history{}, err
	}
	temps, err := s.storage.GetTemperatureHistory(ctx, siteID, start, end)
	if err != nil {
		return history{}, err
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"loaded history",
		slog.Int("usageLen", len(usage)),
		slog.Int("tempLen", len(temps)),
		slog.Time("start", start),
		slog.Time("end", end),
	)

	return history{
		usage: usage,
		temps: temps,
		opts: disaggregate.Options{
			HeatingCandidates: settings.HeatingCandidatesF,
			CoolingCandidates: settings.CoolingCandidatesF,
			Location:          loc,
		},
	}, nil
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)
	start, end, err := parseTimeRange(r, time.Now())
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	h, err := s.loadHistory(ctx, siteID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load history", slog.Any("error", err))
		writeJSONError(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	cal := disaggregate.CalibrateDaily(ctx, h.usage, h.temps, h.opts)

	setCacheControl(w, end, time.Now(), h.opts.Location)
	writeJSON(w, cal)
}

func (s *Server) handleDisaggregation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)
	start, end, err := parseTimeRange(r, time.Now())
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	h, err := s.loadHistory(ctx, siteID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load history", slog.Any("error", err))
		writeJSONError(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	res, err := disaggregate.Run(ctx, h.usage, h.temps, h.opts)
	if errors.Is(err, disaggregate.ErrUnresolvedModel) {
		log.Ctx(ctx).WarnContext(ctx, "calibration cannot cover every day", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	} else if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to disaggregate", slog.Any("error", err))
		writeJSONError(w, "failed to disaggregate", http.StatusInternalServerError)
		return
	}

	setCacheControl(w, end, time.Now(), h.opts.Location)
	writeJSON(w, res.Decomposition.Readings())
}

// setCacheControl caches ranges that ended before the site's local midnight
// for a day and anything else for a minute.
func setCacheControl(w http.ResponseWriter, end, now time.Time, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
}

func parseTimeRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" && endStr == "" {
		return now.Add(-defaultAnalysisRange), now, nil
	}
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("start and end must be given together")
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxAnalysisRange {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 3 years")
	}

	return start, end, nil
}
