package catalog

import (
	"context"
	"fmt"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS datasets (
	id UUID PRIMARY KEY,
	entry_id TEXT NOT NULL UNIQUE,
	entry_title TEXT NOT NULL,
	summary TEXT,
	time_coverage_start TIMESTAMPTZ NOT NULL,
	time_coverage_end TIMESTAMPTZ NOT NULL,
	platform TEXT,
	instrument TEXT,
	location_geometry TEXT NOT NULL,
	provider TEXT,
	iso_topic_category TEXT,
	gcmd_location TEXT,
	created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS dataset_uris (
	uri TEXT PRIMARY KEY,
	dataset_id UUID NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
	service TEXT,
	service_name TEXT,
	created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS dataset_parameters (
	dataset_id UUID NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
	standard_name TEXT NOT NULL,
	short_name TEXT,
	units TEXT,
	UNIQUE (dataset_id, standard_name)
);
CREATE INDEX IF NOT EXISTS dataset_uris_dataset_id_idx ON dataset_uris (dataset_id);
`

// EnsureSchema creates the catalog tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
