// Package normalize converts raw, provider-native metadata into
// normalized catalog records.
package normalize

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/metocean/harvester/internal/catalog"
)

// MissingFieldError reports that the raw metadata lacks a field the
// catalog requires. It is not retryable: replaying the same metadata
// would fail identically.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("raw metadata is missing %q", e.Field)
}

// Normalizer turns raw attributes gathered while crawling into a
// normalized record.
type Normalizer interface {
	Normalize(ctx context.Context, resourceURL string, raw map[string]any) (catalog.NormalizedRecord, error)
}

// AttributeNormalizer is the default Normalizer. It maps well-known
// raw attribute keys onto record fields, parses datetimes from
// whatever format the provider uses, and derives the entry ID from
// the resource URL when the metadata carries none.
type AttributeNormalizer struct {
	provider       string
	entryIDPattern *regexp.Regexp
}

// Option customizes an AttributeNormalizer.
type Option func(*AttributeNormalizer)

// WithProvider sets the provider name used when the raw metadata
// carries none.
func WithProvider(provider string) Option {
	return func(n *AttributeNormalizer) { n.provider = provider }
}

// WithEntryIDPattern extracts the entry ID from the resource URL using
// the pattern's first capture group.
func WithEntryIDPattern(pattern *regexp.Regexp) Option {
	return func(n *AttributeNormalizer) { n.entryIDPattern = pattern }
}

// NewAttributeNormalizer builds the default normalizer.
func NewAttributeNormalizer(opts ...Option) *AttributeNormalizer {
	normalizer := &AttributeNormalizer{}
	for _, opt := range opts {
		opt(normalizer)
	}
	return normalizer
}

// Aliases accepted for each normalized field, in lookup order.
var fieldAliases = map[string][]string{
	"entry_id":            {"entry_id", "id", "identifier"},
	"entry_title":         {"entry_title", "title", "name"},
	"summary":             {"summary", "abstract", "description"},
	"time_coverage_start": {"time_coverage_start", "start_date", "beginposition", "startDate"},
	"time_coverage_end":   {"time_coverage_end", "stop_date", "endposition", "completionDate"},
	"platform":            {"platform", "platform_name"},
	"instrument":          {"instrument", "sensor"},
	"location_geometry":   {"location_geometry", "geometry", "footprint", "gmlfootprint"},
	"provider":            {"provider", "institution", "organisationName"},
	"iso_topic_category":  {"iso_topic_category"},
	"gcmd_location":       {"gcmd_location"},
}

func lookup(raw map[string]any, field string) (any, bool) {
	for _, alias := range fieldAliases[field] {
		if value, ok := raw[alias]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func lookupString(raw map[string]any, field string) string {
	value, ok := lookup(raw, field)
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return fmt.Sprintf("%v", value)
	}
	return text
}

// Normalize maps raw attributes onto a record and validates it.
func (n *AttributeNormalizer) Normalize(_ context.Context, resourceURL string, raw map[string]any) (catalog.NormalizedRecord, error) {
	record := catalog.NormalizedRecord{
		Title:            lookupString(raw, "entry_title"),
		EntryID:          lookupString(raw, "entry_id"),
		Summary:          lookupString(raw, "summary"),
		Platform:         lookupString(raw, "platform"),
		Instrument:       lookupString(raw, "instrument"),
		Provider:         lookupString(raw, "provider"),
		ISOTopicCategory: lookupString(raw, "iso_topic_category"),
		GCMDLocation:     lookupString(raw, "gcmd_location"),
	}
	if record.EntryID == "" {
		record.EntryID = n.entryIDFromURL(resourceURL)
	}
	if record.EntryID == "" {
		return catalog.NormalizedRecord{}, &MissingFieldError{Field: "entry_id"}
	}
	if record.Title == "" {
		record.Title = record.EntryID
	}
	if record.Provider == "" {
		record.Provider = n.provider
	}

	var err error
	if record.TimeCoverageStart, err = parseTime(raw, "time_coverage_start"); err != nil {
		return catalog.NormalizedRecord{}, err
	}
	if record.TimeCoverageEnd, err = parseTime(raw, "time_coverage_end"); err != nil {
		return catalog.NormalizedRecord{}, err
	}
	if record.GeometryWKT, err = parseGeometry(raw); err != nil {
		return catalog.NormalizedRecord{}, err
	}
	record.Parameters = parseParameters(raw)
	record.Service, record.ServiceName = serviceForURL(resourceURL)

	if err := record.Validate(); err != nil {
		return catalog.NormalizedRecord{}, err
	}
	return record, nil
}

// entryIDFromURL derives the entry ID from the resource URL, either
// through the configured pattern or by stripping the path's extension.
func (n *AttributeNormalizer) entryIDFromURL(resourceURL string) string {
	if n.entryIDPattern != nil {
		match := n.entryIDPattern.FindStringSubmatch(resourceURL)
		if len(match) > 1 {
			return match[1]
		}
		return ""
	}
	parsed, err := url.Parse(resourceURL)
	if err != nil || parsed.Path == "" {
		return ""
	}
	base := path.Base(parsed.Path)
	for {
		ext := path.Ext(base)
		if ext == "" {
			return base
		}
		base = strings.TrimSuffix(base, ext)
	}
}

func parseTime(raw map[string]any, field string) (time.Time, error) {
	value, ok := lookup(raw, field)
	if !ok {
		return time.Time{}, &MissingFieldError{Field: field}
	}
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		parsed, err := dateparse.ParseIn(v, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse %s: %w", field, err)
		}
		return parsed.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("parse %s: unsupported type %T", field, value)
	}
}

func parseGeometry(raw map[string]any) (string, error) {
	value, ok := lookup(raw, "location_geometry")
	if !ok {
		return "", &MissingFieldError{Field: "location_geometry"}
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("parse location_geometry: unsupported type %T", value)
	}
	if _, err := wkt.Unmarshal(text); err != nil {
		return "", fmt.Errorf("parse location_geometry: %w", err)
	}
	return text, nil
}

func parseParameters(raw map[string]any) []catalog.Parameter {
	value, ok := raw["parameters"]
	if !ok {
		value, ok = raw["raw_dataset_parameters"]
	}
	if !ok {
		return nil
	}
	switch parameters := value.(type) {
	case []catalog.Parameter:
		return parameters
	case []map[string]string:
		converted := make([]catalog.Parameter, 0, len(parameters))
		for _, p := range parameters {
			converted = append(converted, catalog.Parameter{
				StandardName: p["standard_name"],
				ShortName:    p["short_name"],
				Units:        p["units"],
			})
		}
		return converted
	case []string:
		converted := make([]catalog.Parameter, 0, len(parameters))
		for _, name := range parameters {
			converted = append(converted, catalog.Parameter{StandardName: name})
		}
		return converted
	default:
		return nil
	}
}

// serviceForURL maps the resource URL scheme and path onto the catalog
// service taxonomy.
func serviceForURL(resourceURL string) (service, serviceName string) {
	parsed, err := url.Parse(resourceURL)
	if err != nil {
		return "HTTPServer", "http"
	}
	switch {
	case parsed.Scheme == "ftp":
		return "FTP", "ftp"
	case parsed.Scheme == "file" || parsed.Scheme == "":
		return "FILE", "local"
	case strings.Contains(parsed.Path, "/dodsC/") || strings.Contains(parsed.Path, "/opendap/"):
		return "OPENDAP", "dap"
	default:
		return "HTTPServer", "http"
	}
}
