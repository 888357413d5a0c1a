package crawl

import (
	"regexp"
	"strconv"
	"time"
)

// TimeRange bounds a crawl. A nil side is unbounded. Both sides are
// timezone-aware UTC when set.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// NewTimeRange builds a TimeRange; zero times become unbounded sides.
func NewTimeRange(start, end time.Time) TimeRange {
	tr := TimeRange{}
	if !start.IsZero() {
		utc := start.UTC()
		tr.Start = &utc
	}
	if !end.IsZero() {
		utc := end.UTC()
		tr.End = &utc
	}
	return tr
}

// Intersects reports whether the [coverageStart, coverageStop)
// interval intersects the range. A nil coverage side, or a nil range
// side, never excludes.
func (tr TimeRange) Intersects(coverageStart, coverageStop *time.Time) bool {
	startOK := coverageStart == nil || tr.End == nil || !coverageStart.After(*tr.End)
	stopOK := coverageStop == nil || tr.Start == nil || !coverageStop.Before(*tr.Start)
	return startOK && stopOK
}

// Folder paths commonly embed dates at year, month or day granularity:
// .../2019/, .../2019/02/, .../201902/, .../2019/02/14/, .../20190214/
// and .../2019/046/ (day of year). The most specific pattern wins.
const (
	yearPattern       = `y?(?P<year>\d{4})`
	monthPattern      = `m?(?P<month>1[0-2]|0[1-9])`
	dayOfMonthPattern = `(?P<day>3[0-1]|[1-2]\d|0[1-9])`
	dayOfYearPattern  = `(?P<day>36[0-6]|3[0-5]\d|[1-2]\d\d|0[1-9]\d|00[1-9])`
)

var (
	yearMatcher       = regexp.MustCompile(`^.*/` + yearPattern + `(/.*)?$`)
	monthMatcher      = regexp.MustCompile(`^.*/` + yearPattern + `/?` + monthPattern + `(/.*)?$`)
	dayOfMonthMatcher = regexp.MustCompile(
		`^.*/` + yearPattern + `/?` + monthPattern + `/?` + dayOfMonthPattern + `(/.*)?$`)
	dayOfYearMatcher = regexp.MustCompile(`^.*/` + yearPattern + `/` + dayOfYearPattern + `(/.*)?$`)
)

func namedGroups(matcher *regexp.Regexp, match []string) map[string]int {
	groups := make(map[string]int)
	for i, name := range matcher.SubexpNames() {
		if name == "" || i >= len(match) || match[i] == "" {
			continue
		}
		value, err := strconv.Atoi(match[i])
		if err != nil {
			continue
		}
		groups[name] = value
	}
	return groups
}

// FolderCoverage infers the [start, stop) time interval covered by a
// folder from date tokens embedded in its path. Returns nil values
// when no date information is present. Maximum resolution is one day;
// the most specific matching pattern wins.
func FolderCoverage(folderPath string) (start, stop *time.Time) {
	if match := dayOfMonthMatcher.FindStringSubmatch(folderPath); match != nil {
		groups := namedGroups(dayOfMonthMatcher, match)
		coverageStart := time.Date(groups["year"], time.Month(groups["month"]), groups["day"],
			0, 0, 0, 0, time.UTC)
		coverageStop := coverageStart.AddDate(0, 0, 1)
		return &coverageStart, &coverageStop
	}
	if match := dayOfYearMatcher.FindStringSubmatch(folderPath); match != nil {
		groups := namedGroups(dayOfYearMatcher, match)
		coverageStart := time.Date(groups["year"], time.January, 1, 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, groups["day"]-1)
		coverageStop := coverageStart.AddDate(0, 0, 1)
		return &coverageStart, &coverageStop
	}
	if match := monthMatcher.FindStringSubmatch(folderPath); match != nil {
		groups := namedGroups(monthMatcher, match)
		coverageStart := time.Date(groups["year"], time.Month(groups["month"]), 1,
			0, 0, 0, 0, time.UTC)
		coverageStop := coverageStart.AddDate(0, 1, 0)
		return &coverageStart, &coverageStop
	}
	if match := yearMatcher.FindStringSubmatch(folderPath); match != nil {
		groups := namedGroups(yearMatcher, match)
		coverageStart := time.Date(groups["year"], time.January, 1, 0, 0, 0, 0, time.UTC)
		coverageStop := coverageStart.AddDate(1, 0, 0)
		return &coverageStart, &coverageStop
	}
	return nil, nil
}
