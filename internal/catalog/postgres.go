package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreConfig controls the Postgres connection pool used for the
// catalog tables.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store is the catalog persistence interface used by the ingestion
// pipeline.
type Store interface {
	// URIExists reports whether a dataset URI is already cataloged.
	URIExists(ctx context.Context, uri string) (bool, error)
	// IngestDataset writes one normalized record and its URI. When
	// update is true an existing dataset's fields are refreshed.
	IngestDataset(ctx context.Context, record NormalizedRecord, uri string, update bool) (Outcome, error)
	// DatasetCount returns the number of cataloged datasets.
	DatasetCount(ctx context.Context) (int64, error)
	Close()
}

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore persists normalized records into Postgres.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects a catalog store using the provided config.
func NewPostgresStore(ctx context.Context, cfg StoreConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// URIExists reports whether a dataset URI is already cataloged.
func (s *PostgresStore) URIExists(ctx context.Context, uri string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dataset_uris WHERE uri = $1)`, uri).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check uri: %w", err)
	}
	return exists, nil
}

// DatasetCount returns the number of cataloged datasets.
func (s *PostgresStore) DatasetCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM datasets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count datasets: %w", err)
	}
	return count, nil
}

const insertDatasetQuery = `
INSERT INTO datasets (
	id,
	entry_id,
	entry_title,
	summary,
	time_coverage_start,
	time_coverage_end,
	platform,
	instrument,
	location_geometry,
	provider,
	iso_topic_category,
	gcmd_location
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (entry_id) DO NOTHING`

const updateDatasetQuery = `
UPDATE datasets SET
	entry_title = $2,
	summary = $3,
	time_coverage_start = $4,
	time_coverage_end = $5,
	platform = $6,
	instrument = $7,
	location_geometry = $8,
	provider = $9,
	iso_topic_category = $10,
	gcmd_location = $11
WHERE id = $1`

// IngestDataset writes one record inside a transaction. Concurrent
// ingestion of the same entry_id is serialized by the unique
// constraint: the loser of the insert race re-reads the winner's row
// and attaches its URI to it.
func (s *PostgresStore) IngestDataset(ctx context.Context, record NormalizedRecord, uri string, update bool) (Outcome, error) {
	if err := record.Validate(); err != nil {
		return OutcomeNoop, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var datasetID uuid.UUID
	created := false
	err = tx.QueryRow(ctx, `SELECT id FROM datasets WHERE entry_id = $1`, record.EntryID).
		Scan(&datasetID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		datasetID = uuid.New()
		tag, insertErr := tx.Exec(ctx, insertDatasetQuery,
			datasetID, record.EntryID, record.Title, record.Summary,
			record.TimeCoverageStart, record.TimeCoverageEnd,
			record.Platform, record.Instrument, record.GeometryWKT,
			record.Provider, record.ISOTopicCategory, record.GCMDLocation)
		if insertErr != nil {
			return OutcomeNoop, fmt.Errorf("insert dataset: %w", insertErr)
		}
		if tag.RowsAffected() == 1 {
			created = true
		} else {
			// Another worker inserted the same entry_id first.
			if scanErr := tx.QueryRow(ctx,
				`SELECT id FROM datasets WHERE entry_id = $1`, record.EntryID).
				Scan(&datasetID); scanErr != nil {
				return OutcomeNoop, fmt.Errorf("select dataset after conflict: %w", scanErr)
			}
		}
	case err != nil:
		return OutcomeNoop, fmt.Errorf("select dataset: %w", err)
	case update:
		if _, updateErr := tx.Exec(ctx, updateDatasetQuery,
			datasetID, record.Title, record.Summary,
			record.TimeCoverageStart, record.TimeCoverageEnd,
			record.Platform, record.Instrument, record.GeometryWKT,
			record.Provider, record.ISOTopicCategory, record.GCMDLocation); updateErr != nil {
			return OutcomeNoop, fmt.Errorf("update dataset: %w", updateErr)
		}
	}

	tag, err := tx.Exec(ctx, `
INSERT INTO dataset_uris (dataset_id, uri, service, service_name)
VALUES ($1,$2,$3,$4) ON CONFLICT (uri) DO NOTHING`,
		datasetID, uri, record.Service, record.ServiceName)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("insert uri: %w", err)
	}
	uriAdded := tag.RowsAffected() == 1

	if created {
		for _, parameter := range storableParameters(record.Parameters) {
			if _, err := tx.Exec(ctx, `
INSERT INTO dataset_parameters (dataset_id, standard_name, short_name, units)
VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING`,
				datasetID, parameter.StandardName, parameter.ShortName, parameter.Units); err != nil {
				return OutcomeNoop, fmt.Errorf("insert parameter: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return OutcomeNoop, fmt.Errorf("commit: %w", err)
	}
	switch {
	case created:
		return OutcomeCreated, nil
	case uriAdded || update:
		return OutcomeUpdated, nil
	default:
		return OutcomeNoop, nil
	}
}

// storableParameters drops parameters that carry no vocabulary
// information or describe the grid axes rather than a measured
// variable.
func storableParameters(parameters []Parameter) []Parameter {
	kept := make([]Parameter, 0, len(parameters))
	for _, parameter := range parameters {
		name := strings.ToLower(parameter.StandardName)
		if name == "" || name == "latitude" || name == "longitude" || name == "time" {
			continue
		}
		kept = append(kept, parameter)
	}
	return kept
}
