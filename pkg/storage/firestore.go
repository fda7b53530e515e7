package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usageCollection       = "usage_history"
	temperatureCollection = "temperature_history"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Each site keeps its settings and its usage and temperature
// history in sub-collections of its "sites" document.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project ID is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) getCollection(siteID, name string) (*firestore.CollectionRef, error) {
	if siteID == "" {
		return nil, fmt.Errorf("siteID cannot be empty")
	}
	return f.client.Collection("sites").Doc(siteID).Collection(name), nil
}

// GetSettings retrieves the dynamic configuration from the "config/settings" document.
func (f *FirestoreProvider) GetSettings(ctx context.Context, siteID string) (types.Settings, int, error) {
	coll, err := f.getCollection(siteID, "config")
	if err != nil {
		return types.Settings{}, 0, err
	}
	doc, err := coll.Doc("settings").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// callers migrate the zero value into defaults
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	jsonStr, err := docJSON(doc)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid settings doc", slog.String("siteID", siteID), slog.Any("err", err))
		return types.Settings{}, 0, fmt.Errorf("invalid settings document: %w", err)
	}

	var s types.Settings
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal settings json", slog.String("siteID", siteID), slog.Any("err", err))
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return s, version, nil
}

// SetSettings saves the dynamic configuration to the "config/settings" document.
// It stores the settings as a JSON string for portability.
func (f *FirestoreProvider) SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	coll, err := f.getCollection(siteID, "config")
	if err != nil {
		return err
	}
	_, err = coll.Doc("settings").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// UpsertUsage adds or updates consumption readings in the "usage_history"
// sub-collection of the site.
func (f *FirestoreProvider) UpsertUsage(ctx context.Context, siteID string, usage types.Series) error {
	if err := f.upsertSeries(ctx, siteID, usageCollection, usage); err != nil {
		return fmt.Errorf("failed to upsert usage: %w", err)
	}
	return nil
}

// UpsertTemperatures adds or updates outdoor temperatures in the
// "temperature_history" sub-collection of the site.
func (f *FirestoreProvider) UpsertTemperatures(ctx context.Context, siteID string, temps types.Series) error {
	if err := f.upsertSeries(ctx, siteID, temperatureCollection, temps); err != nil {
		return fmt.Errorf("failed to upsert temperatures: %w", err)
	}
	return nil
}

// upsertSeries writes one document per point. The document ID is the RFC3339
// timestamp so an existing reading for the same instant is replaced.
func (f *FirestoreProvider) upsertSeries(ctx context.Context, siteID, name string, s types.Series) error {
	if len(s) == 0 {
		return nil
	}
	coll, err := f.getCollection(siteID, name)
	if err != nil {
		return err
	}

	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(s))
	for _, p := range s {
		if p.TS.IsZero() {
			bw.End()
			return fmt.Errorf("point missing timestamp")
		}
		jsonBytes, err := json.Marshal(p)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to marshal point: %w", err)
		}
		docID := p.TS.UTC().Format(time.RFC3339)
		job, err := bw.Set(coll.Doc(docID), map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": p.TS,
		})
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue %s: %w", docID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return err
		}
	}
	return nil
}

// GetUsageHistory retrieves consumption readings within [start, end).
func (f *FirestoreProvider) GetUsageHistory(ctx context.Context, siteID string, start, end time.Time) (types.Series, error) {
	s, err := f.getSeries(ctx, siteID, usageCollection, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage history: %w", err)
	}
	return s, nil
}

// GetTemperatureHistory retrieves outdoor temperatures within [start, end).
func (f *FirestoreProvider) GetTemperatureHistory(ctx context.Context, siteID string, start, end time.Time) (types.Series, error) {
	s, err := f.getSeries(ctx, siteID, temperatureCollection, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get temperature history: %w", err)
	}
	return s, nil
}

// getSeries uses document ID range queries for efficient filtering without
// reading all documents.
func (f *FirestoreProvider) getSeries(ctx context.Context, siteID, name string, start, end time.Time) (types.Series, error) {
	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)

	coll, err := f.getCollection(siteID, name)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var series types.Series
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating %s: %w", name, err)
		}

		jsonStr, err := docJSON(doc)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "invalid history doc", slog.String("docID", doc.Ref.ID), slog.String("collection", name), slog.String("siteID", siteID), slog.Any("err", err))
			return nil, fmt.Errorf("document %s: %w", doc.Ref.ID, err)
		}

		var p types.Point
		if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal point", slog.String("docID", doc.Ref.ID), slog.String("collection", name), slog.String("siteID", siteID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal point (id=%s): %w", doc.Ref.ID, err)
		}
		series = append(series, p)
	}
	return series, nil
}

// GetLatestTemperatureTime retrieves the timestamp of the last stored
// temperature for a site. It returns the zero time when nothing is stored.
func (f *FirestoreProvider) GetLatestTemperatureTime(ctx context.Context, siteID string) (time.Time, error) {
	coll, err := f.getCollection(siteID, temperatureCollection)
	if err != nil {
		return time.Time{}, err
	}

	// firestore automatically creates indexes for top-level fields
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest temperature doc: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, doc.Ref.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid temperature doc id %s: %w", doc.Ref.ID, err)
	}
	return ts, nil
}

// GetSite retrieves a site from the "sites" collection.
func (f *FirestoreProvider) GetSite(ctx context.Context, siteID string) (types.Site, error) {
	if siteID == "" {
		return types.Site{}, fmt.Errorf("siteID cannot be empty")
	}
	doc, err := f.client.Collection("sites").Doc(siteID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
		}
		return types.Site{}, fmt.Errorf("failed to get site %s: %w", siteID, err)
	}

	jsonStr, err := docJSON(doc)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid site doc", slog.String("siteID", siteID), slog.Any("err", err))
		return types.Site{}, fmt.Errorf("site %s: %w", siteID, err)
	}

	var site types.Site
	if err := json.Unmarshal([]byte(jsonStr), &site); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal site", slog.String("siteID", siteID), slog.Any("err", err))
		return types.Site{}, fmt.Errorf("failed to unmarshal site %s: %w", siteID, err)
	}
	return site, nil
}

// CreateSite creates a new site document in the "sites" collection. It fails
// if the site already exists.
func (f *FirestoreProvider) CreateSite(ctx context.Context, siteID string, site types.Site) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	siteJSON, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("failed to marshal site %s: %w", siteID, err)
	}
	_, err = f.client.Collection("sites").Doc(siteID).Create(ctx, map[string]interface{}{
		"json": string(siteJSON),
	})
	if err != nil {
		return fmt.Errorf("failed to create site %s: %w", siteID, err)
	}
	return nil
}

// docJSON returns the "json" string field every document stores its record in.
func docJSON(doc *firestore.DocumentSnapshot) (string, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		return "", fmt.Errorf("missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("'json' field is not a string")
	}
	return jsonStr, nil
}
