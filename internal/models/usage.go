package models

import "time"

// Zone identifies an independently limited quota bucket on the remote API
type Zone string

const (
	// ZoneRead covers read operations (listings, stream contents).
	ZoneRead Zone = "zone1"
	// ZoneWrite covers write operations (edit-tag, mark-all-as-read).
	ZoneWrite Zone = "zone2"
)

// Zones lists every zone in a stable order
var Zones = []Zone{ZoneRead, ZoneWrite}

// DayKeyLayout is the layout of UsageRecord.Day (UTC calendar day)
const DayKeyLayout = "2006-01-02"

// DayKey returns the UTC calendar day key for t
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// ZoneUsage holds the counters of a single zone
type ZoneUsage struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
	// LocalCalls counts calls dispatched by this process for the day.
	LocalCalls int64 `json:"local_calls"`
	// HeaderSeen is set once the remote service reported a usage value for the day.
	HeaderSeen bool `json:"header_seen"`
}

// UsageRecord stores quota usage for one service and UTC day
type UsageRecord struct {
	Service           string    `json:"service"`
	Day               string    `json:"day"`
	Zone1             ZoneUsage `json:"zone1"`
	Zone2             ZoneUsage `json:"zone2"`
	ResetAfterSeconds int64     `json:"reset_after_seconds"`
	ResetAt           time.Time `json:"reset_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewUsageRecord creates an empty record for the day containing now
func NewUsageRecord(service string, now time.Time, zone1Limit, zone2Limit int64) *UsageRecord {
	return &UsageRecord{
		Service:   service,
		Day:       DayKey(now),
		Zone1:     ZoneUsage{Limit: zone1Limit},
		Zone2:     ZoneUsage{Limit: zone2Limit},
		UpdatedAt: now,
	}
}

// Zone returns a pointer to the counters of z
func (r *UsageRecord) Zone(z Zone) *ZoneUsage {
	if z == ZoneWrite {
		return &r.Zone2
	}
	return &r.Zone1
}

// Clone returns a copy safe to hand out to readers
func (r *UsageRecord) Clone() *UsageRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
