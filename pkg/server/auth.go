package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/storage"
	"github.com/raterudder/balancepoint/pkg/types"
)

// identity is the authenticated caller of a request.
type identity struct {
	Subject string
	Email   string
	// Admin is set for callers in the admin list and when auth is bypassed.
	Admin bool
}

// tokenVerifier validates a raw OIDC ID token and returns its identity.
type tokenVerifier func(ctx context.Context, rawIDToken string) (identity, error)

func oidcVerifier(v *oidc.IDTokenVerifier) tokenVerifier {
	return func(ctx context.Context, rawIDToken string) (identity, error) {
		idToken, err := v.Verify(ctx, rawIDToken)
		if err != nil {
			return identity{}, err
		}
		var claims struct {
			Email         string `json:"email"`
			EmailVerified *bool  `json:"email_verified"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return identity{}, fmt.Errorf("failed to parse claims: %w", err)
		}
		// an unverified email cannot be used to match permissions
		if claims.EmailVerified != nil && !*claims.EmailVerified {
			claims.Email = ""
		}
		return identity{Subject: idToken.Subject, Email: claims.Email}, nil
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

		isUpdatePath := r.URL.Path == "/api/update"
		// creating a site is the one call that isn't scoped to an existing site
		isCreateSitePath := r.URL.Path == "/api/sites" && r.Method == http.MethodPost

		// extract SiteID
		var siteID string
		if r.Method == http.MethodGet {
			siteID = r.URL.Query().Get("siteID")
		} else if r.Body != nil {
			// Limit body size to 10MB since usage uploads can be large
			r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to read request body", slog.Any("error", err))
				// since we failed to read, don't return JSON error
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			// restore body for next handler
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

			// try to unmarshal just the SiteID
			if len(bodyBytes) > 0 {
				var justSiteID struct {
					SiteID string `json:"siteID"`
				}
				if err := json.Unmarshal(bodyBytes, &justSiteID); err != nil {
					log.Ctx(ctx).ErrorContext(ctx, "failed to unmarshal request body", slog.Any("error", err))
					http.Error(w, "invalid request", http.StatusBadRequest)
					return
				}
				siteID = justSiteID.SiteID
			}
		}
		if siteID == "" {
			if s.singleSite {
				siteID = types.SiteIDNone
			} else if !isCreateSitePath {
				writeJSONError(w, "siteID required", http.StatusBadRequest)
				return
			}
		}

		var id identity
		if s.bypassAuth {
			id = identity{Admin: true}
		} else {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Ctx(ctx).WarnContext(ctx, "missing authorization header")
				writeJSONError(w, "missing authorization", http.StatusUnauthorized)
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
				writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			var err error
			id, err = s.authenticateToken(ctx, token)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
				writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
				return
			}
			id.Admin = s.isAdmin(id.Email)

			allowed := id.Admin || s.singleSite
			if !allowed && isUpdatePath && s.updateSpecificEmail != "" && id.Email != "" {
				allowed = subtle.ConstantTimeCompare([]byte(id.Email), []byte(s.updateSpecificEmail)) == 1
			}
			if !allowed && !isCreateSitePath {
				site, err := s.storage.GetSite(ctx, siteID)
				if err != nil {
					if errors.Is(err, storage.ErrSiteNotFound) {
						log.Ctx(ctx).WarnContext(ctx, "site not found", slog.String("siteID", siteID))
					} else {
						log.Ctx(ctx).ErrorContext(ctx, "site lookup failed", slog.String("siteID", siteID), slog.Any("error", err))
					}
					writeJSONError(w, "site access denied", http.StatusForbidden)
					return
				}
				if !site.Allows(id.Subject, id.Email) {
					log.Ctx(ctx).WarnContext(ctx, "user does not have permission for site", slog.String("userID", id.Subject), slog.String("email", id.Email), slog.String("siteID", siteID))
					writeJSONError(w, "site access denied", http.StatusForbidden)
					return
				}
			}
		}

		if id.Subject != "" {
			ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("authUserID", id.Subject)))
		}
		if siteID != "" {
			ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("authSiteID", siteID)))
		}

		log.Ctx(ctx).DebugContext(
			ctx,
			"authenticated request",
			slog.String("email", id.Email),
			slog.Bool("admin", id.Admin),
		)

		ctx = context.WithValue(ctx, identityContextKey, id)
		ctx = context.WithValue(ctx, siteIDContextKey, siteID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateToken tries every configured verifier and returns the first
// identity that validates.
func (s *Server) authenticateToken(ctx context.Context, token string) (identity, error) {
	var errs []error
	for providerName, verifier := range s.oidcVerifiers {
		id, err := verifier(ctx, token)
		if err == nil {
			return id, nil
		}
		errs = append(errs, fmt.Errorf("%s verifier failed: %w", providerName, err))
	}
	if len(errs) > 0 {
		return identity{}, errors.Join(errs...)
	}
	return identity{}, errors.New("no valid audiences configured or token invalid")
}
