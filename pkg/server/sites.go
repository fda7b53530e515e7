package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/storage"
	"github.com/raterudder/balancepoint/pkg/types"
)

// handleCreateSite creates a new site owned by the caller.
func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.singleSite {
		writeJSONError(w, "cannot create a new site in single-site mode", http.StatusForbidden)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := s.getIdentity(r)
	if id.Subject == "" && !s.bypassAuth {
		writeJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	siteID, err := s.newSiteID(r, id.Email)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to generate site id", slog.Any("error", err))
		writeJSONError(w, "failed to generate site id", http.StatusInternalServerError)
		return
	}
	if req.Name == "" {
		req.Name = siteID
	}

	site := types.Site{
		ID:   siteID,
		Name: req.Name,
	}
	if id.Subject != "" {
		site.Permissions = []types.SitePermissions{{UserID: id.Subject, Email: id.Email}}
	}
	if err := s.storage.CreateSite(ctx, siteID, site); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create site", slog.String("siteID", siteID), slog.Any("error", err))
		writeJSONError(w, "failed to create site", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "created site", slog.String("siteID", siteID))
	writeJSON(w, site)
}

// newSiteID prefers a readable ID from the email's local part when it is long
// enough and not taken, and otherwise a random hex ID.
func (s *Server) newSiteID(r *http.Request, email string) (string, error) {
	prefix, _, _ := strings.Cut(email, "@")
	if len(prefix) >= 8 {
		for i := 0; i < 10; i++ {
			try := prefix
			if i > 0 {
				try = fmt.Sprintf("%s_%d", prefix, i)
			}
			if _, err := s.storage.GetSite(r.Context(), try); errors.Is(err, storage.ErrSiteNotFound) {
				return try, nil
			}
		}
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
