package usage

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PartitionLayout is the layout of the date partition key.
	PartitionLayout = "2006-01-02"

	// sortTimeLayout is the time part of the sort key (millisecond precision).
	sortTimeLayout = "15:04:05.000"

	// DefaultRetentionDays is the default record retention.
	DefaultRetentionDays = 90
)

// PartitionKey returns the YYYY-MM-DD partition for t in UTC.
func PartitionKey(t time.Time) string {
	return t.UTC().Format(PartitionLayout)
}

// SortKey returns HH:MM:SS.mmm#agentID for t in UTC.
func SortKey(t time.Time, agentID string) string {
	return t.UTC().Format(sortTimeLayout) + "#" + agentID
}

// ParseKey reconstructs the timestamp (millisecond precision) and agent id
// from a partition and sort key pair.
func ParseKey(partition, sortKey string) (time.Time, string, error) {
	timePart, agentID, ok := strings.Cut(sortKey, "#")
	if !ok {
		return time.Time{}, "", fmt.Errorf("sort key %q has no agent separator", sortKey)
	}
	t, err := time.ParseInLocation(PartitionLayout+"T"+sortTimeLayout, partition+"T"+timePart, time.UTC)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid key %s/%s: %w", partition, sortKey, err)
	}
	return t, agentID, nil
}

// ExpiresAt returns the epoch-seconds expiry for an item written at
// writeTime and kept for retentionDays.
func ExpiresAt(writeTime time.Time, retentionDays int) int64 {
	return writeTime.Add(time.Duration(retentionDays) * 24 * time.Hour).Unix()
}

// DateRange is an inclusive range of UTC days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange returns a range covering the days of start and end.
func NewDateRange(start, end time.Time) *DateRange {
	return &DateRange{Start: StartOfDay(start), End: StartOfDay(end)}
}

// ParseDateRange parses two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (*DateRange, error) {
	s, err := time.ParseInLocation(PartitionLayout, start, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.ParseInLocation(PartitionLayout, end, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return &DateRange{Start: s, End: e}, nil
}

// Days returns the partition keys covered by the range, oldest first. An
// inverted range yields no days.
func (d *DateRange) Days() []string {
	var days []string
	end := StartOfDay(d.End)
	for day := StartOfDay(d.Start); !day.After(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day.Format(PartitionLayout))
	}
	return days
}

// Contains reports whether t falls on a day inside the range.
func (d *DateRange) Contains(t time.Time) bool {
	day := StartOfDay(t)
	return !day.Before(StartOfDay(d.Start)) && !day.After(StartOfDay(d.End))
}

// Bounds returns the first and last instants covered by the range.
func (d *DateRange) Bounds() (time.Time, time.Time) {
	return StartOfDay(d.Start), StartOfDay(d.End).Add(24*time.Hour - time.Nanosecond)
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
