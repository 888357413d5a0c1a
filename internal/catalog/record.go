// Package catalog defines the normalized dataset record and the
// Postgres-backed catalog store.
package catalog

import (
	"fmt"
	"time"
)

// Parameter is one measured variable of a dataset, identified by a
// vocabulary standard name with optional short name and units.
type Parameter struct {
	StandardName string
	ShortName    string
	Units        string
}

// NormalizedRecord is the harmonized description of one dataset, the
// unit of ingestion into the catalog.
type NormalizedRecord struct {
	Title             string
	EntryID           string
	Summary           string
	TimeCoverageStart time.Time
	TimeCoverageEnd   time.Time
	Platform          string
	Instrument        string
	// GeometryWKT is the dataset's spatial coverage in WKT.
	GeometryWKT      string
	Provider         string
	ISOTopicCategory string
	GCMDLocation     string
	Parameters       []Parameter
	// Service and ServiceName describe how the dataset's URI is
	// accessed (e.g. HTTPServer, OPENDAP).
	Service     string
	ServiceName string
}

// Validate checks that the fields required for a consistent catalog
// entry are present.
func (r NormalizedRecord) Validate() error {
	switch {
	case r.EntryID == "":
		return fmt.Errorf("record is missing entry_id")
	case r.Title == "":
		return fmt.Errorf("record is missing entry_title")
	case r.TimeCoverageStart.IsZero():
		return fmt.Errorf("record is missing time_coverage_start")
	case r.TimeCoverageEnd.IsZero():
		return fmt.Errorf("record is missing time_coverage_end")
	case r.GeometryWKT == "":
		return fmt.Errorf("record is missing location_geometry")
	}
	return nil
}

// Outcome is the result of ingesting one record.
type Outcome int

const (
	// OutcomeNoop means the URI was already cataloged.
	OutcomeNoop Outcome = iota
	// OutcomeCreated means a new dataset row was created.
	OutcomeCreated
	// OutcomeUpdated means the URI was attached to an existing dataset
	// or the dataset's fields were refreshed.
	OutcomeUpdated
)

// String returns a log-friendly name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "noop"
	}
}
