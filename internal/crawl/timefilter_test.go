package crawl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestFolderCoverage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path  string
		start time.Time
		stop  time.Time
	}{
		{"/data/2019/", date(2019, 1, 1), date(2020, 1, 1)},
		{"/data/y2019/contents.html", date(2019, 1, 1), date(2020, 1, 1)},
		{"/data/2019/02/", date(2019, 2, 1), date(2019, 3, 1)},
		{"/data/201902/", date(2019, 2, 1), date(2019, 3, 1)},
		{"/data/2019/m02/", date(2019, 2, 1), date(2019, 3, 1)},
		{"/data/2019/02/14/", date(2019, 2, 14), date(2019, 2, 15)},
		{"/data/20190214/", date(2019, 2, 14), date(2019, 2, 15)},
		// day of year: 046 in 2019 is February 15th
		{"/data/2019/046/", date(2019, 2, 15), date(2019, 2, 16)},
		// leap year: 366 exists in 2020
		{"/data/2020/366/", date(2020, 12, 31), date(2021, 1, 1)},
	}
	for _, testCase := range cases {
		start, stop := FolderCoverage(testCase.path)
		require.NotNil(t, start, testCase.path)
		require.NotNil(t, stop, testCase.path)
		assert.Equal(t, testCase.start, *start, testCase.path)
		assert.Equal(t, testCase.stop, *stop, testCase.path)
	}
}

func TestFolderCoverageNoDate(t *testing.T) {
	t.Parallel()

	start, stop := FolderCoverage("/data/monthly_means/")
	assert.Nil(t, start)
	assert.Nil(t, stop)
}

func TestFolderCoverageMostSpecificWins(t *testing.T) {
	t.Parallel()

	// Day-of-month granularity wins over the month and year matches
	// present in the same path.
	start, stop := FolderCoverage("/archive/2019/02/14/extra/")
	require.NotNil(t, start)
	assert.Equal(t, date(2019, 2, 14), *start)
	assert.Equal(t, date(2019, 2, 15), *stop)
}

func TestTimeRangeIntersects(t *testing.T) {
	t.Parallel()

	timeRange := NewTimeRange(
		time.Date(2019, 2, 15, 11, 0, 0, 0, time.UTC),
		time.Date(2019, 2, 15, 13, 0, 0, 0, time.UTC))

	// The day before does not cover any part of the range.
	start, stop := FolderCoverage("/data/2019/02/14/")
	assert.False(t, timeRange.Intersects(start, stop))

	// Day-of-year 046 is February 15th, which does.
	start, stop = FolderCoverage("/data/2019/046/")
	assert.True(t, timeRange.Intersects(start, stop))
}

func TestTimeRangeUnboundedSides(t *testing.T) {
	t.Parallel()

	start, stop := FolderCoverage("/data/2019/")

	assert.True(t, TimeRange{}.Intersects(start, stop))
	assert.True(t, NewTimeRange(time.Time{}, date(2019, 6, 1)).Intersects(start, stop))
	assert.False(t, NewTimeRange(date(2021, 1, 1), time.Time{}).Intersects(start, stop))
	// Paths without date tokens are never filtered out.
	assert.True(t, NewTimeRange(date(2021, 1, 1), date(2022, 1, 1)).Intersects(nil, nil))
}
