// Package arguments implements declarative validation of nested
// configuration maps. Each argument type knows how to parse and
// validate its own value; a Parser checks a full parameter map
// against a set of argument definitions.
package arguments

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Argument is one named entry in a parameter map. Parse validates and
// coerces the raw value. Parsing may register child arguments which
// the Parser then validates in the same pass.
type Argument interface {
	Name() string
	Required() bool
	Default() (value any, ok bool)
	Children() []Argument
	Parse(value any) (any, error)
}

// Spec carries the attributes common to all argument types. Concrete
// argument types embed it.
type Spec struct {
	name       string
	required   bool
	defaultVal any
	hasDefault bool
	children   []Argument
}

// NewSpec builds the common part of an argument definition.
func NewSpec(name string) Spec {
	return Spec{name: name}
}

// WithRequired marks the argument as mandatory.
func (s Spec) WithRequired() Spec {
	s.required = true
	return s
}

// WithDefault sets the value used when the argument is absent.
func (s Spec) WithDefault(value any) Spec {
	s.defaultVal = value
	s.hasDefault = true
	return s
}

// Name returns the argument name.
func (s *Spec) Name() string { return s.name }

// Required reports whether the argument must be present.
func (s *Spec) Required() bool { return s.required }

// Default returns the default value, if one was defined.
func (s *Spec) Default() (any, bool) { return s.defaultVal, s.hasDefault }

// Children returns the child arguments registered so far.
func (s *Spec) Children() []Argument { return s.children }

// AddChild registers a child argument, typically from a Parse
// implementation reacting to the parsed value.
func (s *Spec) AddChild(child Argument) {
	s.children = append(s.children, child)
}

// BooleanArgument accepts only explicit booleans. Integers and strings
// such as 0/1/"true" are rejected.
type BooleanArgument struct {
	Spec
}

// NewBoolean builds a boolean argument.
func NewBoolean(spec Spec) *BooleanArgument {
	return &BooleanArgument{Spec: spec}
}

// Parse implements Argument.
func (a *BooleanArgument) Parse(value any) (any, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("argument %q: %v should be a boolean", a.name, value)
	}
	return b, nil
}

// ChildLoader populates child arguments from a parsed value. It allows
// choice arguments to pull per-option sub-schemas at parse time, e.g.
// per-collection search fields fetched from a remote API.
type ChildLoader func(value any) ([]Argument, error)

// ChoiceArgument validates membership in a fixed or dynamically
// populated option set.
type ChoiceArgument struct {
	Spec
	validOptions []any
	loadChildren ChildLoader
}

// NewChoice builds a choice argument. options may be empty, in which
// case any value is accepted.
func NewChoice(spec Spec, options ...any) *ChoiceArgument {
	return &ChoiceArgument{Spec: spec, validOptions: options}
}

// WithChildLoader attaches a loader invoked with the parsed value.
func (a *ChoiceArgument) WithChildLoader(loader ChildLoader) *ChoiceArgument {
	a.loadChildren = loader
	return a
}

func (a *ChoiceArgument) validate(value any) error {
	if len(a.validOptions) == 0 {
		return nil
	}
	for _, option := range a.validOptions {
		if option == value {
			return nil
		}
	}
	return fmt.Errorf("argument %q: %v is not a valid option", a.name, value)
}

// Parse implements Argument. Parsing a valid choice may register child
// arguments through the attached ChildLoader.
func (a *ChoiceArgument) Parse(value any) (any, error) {
	if err := a.validate(value); err != nil {
		return nil, err
	}
	if a.loadChildren != nil {
		children, err := a.loadChildren(value)
		if err != nil {
			return nil, fmt.Errorf("argument %q: load child arguments: %w", a.name, err)
		}
		for _, child := range children {
			a.AddChild(child)
		}
	}
	return value, nil
}

// DatetimeArgument parses a timestamp string. Naive timestamps are
// interpreted as UTC.
type DatetimeArgument struct {
	Spec
}

// NewDatetime builds a datetime argument.
func NewDatetime(spec Spec) *DatetimeArgument {
	return &DatetimeArgument{Spec: spec}
}

// Parse implements Argument.
func (a *DatetimeArgument) Parse(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		if v.Location() == time.Local {
			return v.UTC(), nil
		}
		return v, nil
	case string:
		parsed, err := dateparse.ParseIn(v, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %q is not a valid timestamp: %w", a.name, v, err)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("argument %q: %v should be a timestamp string", a.name, value)
	}
}

// DictArgument accepts a map, optionally restricted to an allowed set
// of keys.
type DictArgument struct {
	Spec
	validKeys []string
}

// NewDict builds a dict argument. validKeys may be empty to allow any
// key.
func NewDict(spec Spec, validKeys ...string) *DictArgument {
	return &DictArgument{Spec: spec, validKeys: validKeys}
}

// Parse implements Argument.
func (a *DictArgument) Parse(value any) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q: %v should be a mapping", a.name, value)
	}
	if len(a.validKeys) > 0 {
		for key := range m {
			allowed := false
			for _, valid := range a.validKeys {
				if key == valid {
					allowed = true
					break
				}
			}
			if !allowed {
				return nil, fmt.Errorf("argument %q: unknown key %q", a.name, key)
			}
		}
	}
	return m, nil
}

// IntegerArgument validates an integer, optionally bounded by an
// inclusive range.
type IntegerArgument struct {
	Spec
	minValue *int
	maxValue *int
}

// NewInteger builds an unbounded integer argument.
func NewInteger(spec Spec) *IntegerArgument {
	return &IntegerArgument{Spec: spec}
}

// WithRange bounds the accepted values (inclusive).
func (a *IntegerArgument) WithRange(minValue, maxValue int) *IntegerArgument {
	a.minValue = &minValue
	a.maxValue = &maxValue
	return a
}

// Parse implements Argument.
func (a *IntegerArgument) Parse(value any) (any, error) {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		// YAML/JSON decoders may hand integers over as floats.
		if v != float64(int(v)) {
			return nil, fmt.Errorf("argument %q: %v should be an integer", a.name, value)
		}
		n = int(v)
	default:
		return nil, fmt.Errorf("argument %q: %v should be an integer", a.name, value)
	}
	if a.minValue != nil && n < *a.minValue || a.maxValue != nil && n > *a.maxValue {
		return nil, fmt.Errorf("argument %q: %d outside of allowed range [%d, %d]",
			a.name, n, *a.minValue, *a.maxValue)
	}
	return n, nil
}

// ListArgument accepts any slice value.
type ListArgument struct {
	Spec
}

// NewList builds a list argument.
func NewList(spec Spec) *ListArgument {
	return &ListArgument{Spec: spec}
}

// Parse implements Argument.
func (a *ListArgument) Parse(value any) (any, error) {
	if l, ok := value.([]any); ok {
		return l, nil
	}
	if l, ok := value.([]string); ok {
		converted := make([]any, len(l))
		for i, s := range l {
			converted[i] = s
		}
		return converted, nil
	}
	return nil, fmt.Errorf("argument %q: %v should be a list", a.name, value)
}

// pathPattern matches absolute paths, relative dotted paths and bare
// slash-separated paths.
var pathPattern = regexp.MustCompile(`^\.{0,2}(/[^/]*)*/?$`)

// PathArgument validates a filesystem path. When validOptions is set,
// the value must be one of the options or a sub-path of one.
type PathArgument struct {
	Spec
	validOptions []string
}

// NewPath builds a path argument.
func NewPath(spec Spec, validOptions ...string) *PathArgument {
	return &PathArgument{Spec: spec, validOptions: validOptions}
}

// Parse implements Argument.
func (a *PathArgument) Parse(value any) (any, error) {
	path, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("argument %q: %v should be a path string", a.name, value)
	}
	if !pathPattern.MatchString(path) {
		return nil, fmt.Errorf("argument %q: %q is not a valid path", a.name, path)
	}
	if len(a.validOptions) > 0 {
		found := false
		for _, valid := range a.validOptions {
			if strings.HasPrefix(path, valid) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("argument %q: %q is not an accepted path %v",
				a.name, path, a.validOptions)
		}
	}
	return path, nil
}

// StringArgument validates a string, optionally against a regular
// expression.
type StringArgument struct {
	Spec
	pattern *regexp.Regexp
}

// NewString builds a string argument.
func NewString(spec Spec) *StringArgument {
	return &StringArgument{Spec: spec}
}

// WithPattern requires values to match the given regular expression.
func (a *StringArgument) WithPattern(pattern *regexp.Regexp) *StringArgument {
	a.pattern = pattern
	return a
}

// Parse implements Argument.
func (a *StringArgument) Parse(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("argument %q: %v should be a string", a.name, value)
	}
	if a.pattern != nil && !a.pattern.MatchString(s) {
		return nil, fmt.Errorf("argument %q: %q does not match the validation pattern %s",
			a.name, s, a.pattern)
	}
	return s, nil
}

// GeometryType identifies a WKT geometry kind accepted by a
// WKTArgument.
type GeometryType string

// Geometry kinds usable in WKTArgument allow-lists.
const (
	GeometryPoint      GeometryType = "Point"
	GeometryLineString GeometryType = "LineString"
	GeometryPolygon    GeometryType = "Polygon"
	GeometryMultiPoint GeometryType = "MultiPoint"
)

// WKTArgument parses a WKT string into a geometry, optionally checking
// its type against an allow-list.
type WKTArgument struct {
	Spec
	geometryTypes []GeometryType
}

// NewWKT builds a WKT geometry argument.
func NewWKT(spec Spec, geometryTypes ...GeometryType) *WKTArgument {
	return &WKTArgument{Spec: spec, geometryTypes: geometryTypes}
}

func geometryTypeOf(g geom.T) GeometryType {
	switch g.(type) {
	case *geom.Point:
		return GeometryPoint
	case *geom.LineString:
		return GeometryLineString
	case *geom.Polygon:
		return GeometryPolygon
	case *geom.MultiPoint:
		return GeometryMultiPoint
	default:
		return GeometryType(fmt.Sprintf("%T", g))
	}
}

// Parse implements Argument.
func (a *WKTArgument) Parse(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("argument %q: %v should be a WKT string", a.name, value)
	}
	geometry, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("argument %q: invalid WKT %q: %w", a.name, s, err)
	}
	if len(a.geometryTypes) > 0 {
		geometryType := geometryTypeOf(geometry)
		supported := false
		for _, valid := range a.geometryTypes {
			if geometryType == valid {
				supported = true
				break
			}
		}
		if !supported {
			return nil, fmt.Errorf("argument %q: geometry type %s is not supported",
				a.name, geometryType)
		}
	}
	return geometry, nil
}
