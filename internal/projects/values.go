package projects

import (
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// dateInputLayouts are tried in order when parsing submitted date/time fields.
var dateInputLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	dateLayout,
}

func parseDateTime(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	for _, layout := range dateInputLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// formatTime renders a stored instant for the audit log; midnight renders as a date.
func formatTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	utc := value.UTC()
	if utc.Hour() == 0 && utc.Minute() == 0 && utc.Second() == 0 && utc.Nanosecond() == 0 {
		return utc.Format(dateLayout)
	}
	return utc.Format(time.RFC3339)
}

func formatRank(rank *int64) string {
	if rank == nil {
		return ""
	}
	return strconv.FormatInt(*rank, 10)
}

func formatID(id *uint) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*id), 10)
}

func parseID(raw string) (uint, bool) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || parsed == 0 {
		return 0, false
	}
	return uint(parsed), true
}

func sameInstant(stored *time.Time, submitted time.Time) bool {
	return stored != nil && stored.Equal(submitted)
}
