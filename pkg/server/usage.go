package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/meter"
	"github.com/raterudder/balancepoint/pkg/types"
)

type usageRequest struct {
	SiteID   string          `json:"siteID"`
	Readings []meter.Reading `json:"readings"`
}

type storedResponse struct {
	Stored int `json:"stored"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	siteID := s.getSiteID(r)

	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode usage", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	usage := make(types.Series, 0, len(req.Readings))
	for i, reading := range req.Readings {
		if reading.TS.IsZero() {
			writeJSONError(w, fmt.Sprintf("readings[%d] missing ts", i), http.StatusBadRequest)
			return
		}
		if math.IsNaN(reading.Wh) || math.IsInf(reading.Wh, 0) || reading.Wh < 0 {
			writeJSONError(w, fmt.Sprintf("readings[%d] has invalid wh", i), http.StatusBadRequest)
			return
		}
		usage = append(usage, types.Point{TS: reading.TS, Value: reading.Wh})
	}

	if err := s.storage.UpsertUsage(ctx, siteID, usage); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store usage", slog.Any("error", err))
		writeJSONError(w, "failed to store usage", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "stored usage", slog.Int("count", len(usage)))
	writeJSON(w, storedResponse{Stored: len(usage)})
}
