// Package quota tracks the remote API's per-zone daily quota and gates
// every remote call on it.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/feed-sync/internal/config"
	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/events"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

// Throttling thresholds as a fraction of the zone limit
const (
	CautionThreshold  = 0.80
	ThrottleThreshold = 0.95
)

// Policy decides how the effective "used" value of a zone is computed
type Policy string

const (
	// PolicyHeader trusts the remote value once one has been observed for the day
	// and falls back to the local call counter otherwise.
	PolicyHeader Policy = "header"
	// PolicyMax takes the larger of the remote value and the local counter.
	PolicyMax Policy = "max"
)

type level int

const (
	levelNormal level = iota
	levelCaution
	levelThrottle
	levelExceeded
)

// UsageStore persists usage records
type UsageStore interface {
	// GetUsage returns nil, nil when no record exists for the day.
	GetUsage(ctx context.Context, service, day string) (*models.UsageRecord, error)
	SaveUsage(ctx context.Context, rec *models.UsageRecord) error
}

// Tracker holds the current usage record of one service. It is safe for
// concurrent use; the persisted record is authoritative across processes.
type Tracker struct {
	store  UsageStore
	cfg    config.QuotaConfig
	policy Policy
	events events.Publisher
	logger *logrus.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	rec         *models.UsageRecord
	unverified  bool
	levels      map[models.Zone]level
	discrepancy map[models.Zone]bool
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithSleeper overrides how the tracker waits
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Tracker) {
		t.sleep = sleep
	}
}

// NewTracker creates a tracker for cfg.Service
func NewTracker(store UsageStore, cfg config.QuotaConfig, pub events.Publisher, logger *logrus.Logger, opts ...Option) *Tracker {
	if pub == nil {
		pub = events.Discard
	}
	policy := Policy(cfg.Policy)
	if policy != PolicyMax {
		policy = PolicyHeader
	}
	t := &Tracker{
		store:       store,
		cfg:         cfg,
		policy:      policy,
		events:      pub,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
		levels:      make(map[models.Zone]level),
		discrepancy: make(map[models.Zone]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CanProceed reports whether zone has budget left
func (t *Tracker) CanProceed(zone models.Zone) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.currentLocked(context.Background())
	used, limit := t.usageLocked(rec, zone)
	return limit <= 0 || used < limit
}

// RecordLocalCall counts a call dispatched by this process
func (t *Tracker) RecordLocalCall(zone models.Zone) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx := context.Background()
	rec := t.currentLocked(ctx)
	rec.Zone(zone).LocalCalls++
	rec.UpdatedAt = t.now()
	t.persistLocked(ctx)
	t.signalLocked(rec, zone)
}

// Reconcile applies a complete remote observation for one zone
func (t *Tracker) Reconcile(zone models.Zone, used, limit, resetAfterSeconds int64) {
	obs := Observation{ResetAfterSeconds: &resetAfterSeconds}
	if zone == models.ZoneWrite {
		obs.Zone2Used, obs.Zone2Limit = &used, &limit
	} else {
		obs.Zone1Used, obs.Zone1Limit = &used, &limit
	}
	t.Apply(context.Background(), obs)
}

// Apply merges a possibly partial remote observation; absent fields keep their value
func (t *Tracker) Apply(ctx context.Context, obs Observation) {
	if obs.Empty() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.currentLocked(ctx)
	now := t.now()

	t.applyZoneLocked(rec, models.ZoneRead, obs.Zone1Used, obs.Zone1Limit)
	t.applyZoneLocked(rec, models.ZoneWrite, obs.Zone2Used, obs.Zone2Limit)

	if obs.ResetAfterSeconds != nil && *obs.ResetAfterSeconds >= 0 {
		rec.ResetAfterSeconds = *obs.ResetAfterSeconds
		rec.ResetAt = now.Add(time.Duration(*obs.ResetAfterSeconds) * time.Second)
	}
	rec.UpdatedAt = now
	t.persistLocked(ctx)

	for _, z := range models.Zones {
		t.signalLocked(rec, z)
	}
}

// RecommendedDelay returns how long the next call should be deferred,
// considering every zone
func (t *Tracker) RecommendedDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.currentLocked(context.Background())
	var delay time.Duration
	for _, z := range models.Zones {
		if d := t.delayLocked(rec, z); d > delay {
			delay = d
		}
	}
	return delay
}

// Await blocks until a call in zone may be dispatched. It sleeps for the
// recommended delay when throttling, waits for the window reset when it is
// within the configured maximum, and otherwise returns a quota exceeded error.
func (t *Tracker) Await(ctx context.Context, zone models.Zone) error {
	for attempt := 0; attempt < 2; attempt++ {
		t.mu.Lock()
		rec := t.currentLocked(ctx)
		unverified := t.unverified
		used, limit := t.usageLocked(rec, zone)
		exhausted := limit > 0 && used >= limit
		delay := t.delayLocked(rec, zone)
		t.mu.Unlock()

		if unverified {
			return apperrors.NewStoreUnavailableError("quota usage record could not be loaded", nil)
		}

		if !exhausted {
			if delay <= 0 {
				return nil
			}
			return t.sleep(ctx, delay)
		}

		if delay <= 0 || delay > t.cfg.MaxWait || attempt > 0 {
			return apperrors.NewQuotaExceededError(string(zone), used, limit, delay)
		}

		t.logger.WithFields(logrus.Fields{
			"zone":  zone,
			"used":  used,
			"limit": limit,
			"wait":  delay,
		}).Warn("Quota exhausted, waiting for window reset")
		if err := t.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of the current usage record
func (t *Tracker) Snapshot(ctx context.Context) *models.UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.currentLocked(ctx).Clone()
}

// Used returns the effective used and limit values of zone under the tracker's policy
func (t *Tracker) Used(zone models.Zone) (used, limit int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.usageLocked(t.currentLocked(context.Background()), zone)
}

// currentLocked returns the record of the current window, loading it from
// the store on first use and on day change, and starting a fresh window
// when the reset deadline has elapsed. While the stored record cannot be
// read every zone reads as exhausted and nothing is persisted; the load is
// retried on the next call.
func (t *Tracker) currentLocked(ctx context.Context) *models.UsageRecord {
	now := t.now()
	day := models.DayKey(now)

	if t.rec == nil || t.rec.Day != day || t.unverified {
		rec, err := t.store.GetUsage(ctx, t.cfg.Service, day)
		if err != nil {
			t.logger.WithError(err).WithField("day", day).Warn("Failed to load usage record, holding calls until it can be read")
			t.rec = t.exhaustedRecord(now)
			t.unverified = true
			return t.rec
		}
		t.unverified = false
		if rec == nil {
			rec = models.NewUsageRecord(t.cfg.Service, now, t.cfg.Zone1Limit, t.cfg.Zone2Limit)
			t.rec = rec
			t.persistLocked(ctx)
		}
		t.rec = rec
		t.resetSignalsLocked()
	}

	if !t.rec.ResetAt.IsZero() && !now.Before(t.rec.ResetAt) {
		t.logger.WithField("day", t.rec.Day).Info("Quota window reset")
		for _, z := range models.Zones {
			zu := t.rec.Zone(z)
			zu.Used = 0
			zu.LocalCalls = 0
			zu.HeaderSeen = false
		}
		t.rec.ResetAfterSeconds = 0
		t.rec.ResetAt = time.Time{}
		t.rec.UpdatedAt = now
		t.resetSignalsLocked()
		t.persistLocked(ctx)
	}
	return t.rec
}

func (t *Tracker) usageLocked(rec *models.UsageRecord, zone models.Zone) (used, limit int64) {
	zu := rec.Zone(zone)
	limit = zu.Limit
	switch {
	case t.policy == PolicyMax:
		used = max(zu.Used, zu.LocalCalls)
	case zu.HeaderSeen:
		used = zu.Used
	default:
		used = zu.LocalCalls
	}
	return used, limit
}

func (t *Tracker) levelLocked(rec *models.UsageRecord, zone models.Zone) (level, float64) {
	used, limit := t.usageLocked(rec, zone)
	if limit <= 0 {
		return levelNormal, 0
	}
	pct := float64(used) / float64(limit)
	switch {
	case pct >= 1:
		return levelExceeded, pct
	case pct >= ThrottleThreshold:
		return levelThrottle, pct
	case pct >= CautionThreshold:
		return levelCaution, pct
	}
	return levelNormal, pct
}

func (t *Tracker) delayLocked(rec *models.UsageRecord, zone models.Zone) time.Duration {
	lvl, _ := t.levelLocked(rec, zone)
	switch lvl {
	case levelExceeded:
		return t.untilResetLocked(rec)
	case levelThrottle:
		return t.cfg.ThrottleDelay
	case levelCaution:
		return t.cfg.CautionDelay
	}
	return 0
}

func (t *Tracker) untilResetLocked(rec *models.UsageRecord) time.Duration {
	now := t.now()
	if !rec.ResetAt.IsZero() {
		return rec.ResetAt.Sub(now)
	}
	midnight := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	return midnight.Sub(now)
}

func (t *Tracker) applyZoneLocked(rec *models.UsageRecord, zone models.Zone, used, limit *int64) {
	zu := rec.Zone(zone)
	if limit != nil && *limit > 0 {
		zu.Limit = *limit
	}
	if used == nil {
		return
	}
	zu.Used = *used
	zu.HeaderSeen = true

	diff := zu.Used - zu.LocalCalls
	if diff < 0 {
		diff = -diff
	}
	tolerance := max(int64(10), zu.Limit/10)
	if diff > tolerance && !t.discrepancy[zone] {
		t.discrepancy[zone] = true
		t.events.Publish(events.Event{
			Type:     events.QuotaDiscrepancy,
			Severity: events.SeverityWarning,
			Message:  "Remote quota usage diverges from local call counter",
			Fields: map[string]interface{}{
				"zone":        string(zone),
				"remote_used": zu.Used,
				"local_calls": zu.LocalCalls,
			},
		})
	}
}

// signalLocked emits an event when a zone crosses into a higher throttling level
func (t *Tracker) signalLocked(rec *models.UsageRecord, zone models.Zone) {
	lvl, pct := t.levelLocked(rec, zone)
	if lvl <= t.levels[zone] {
		return
	}
	t.levels[zone] = lvl

	used, limit := t.usageLocked(rec, zone)
	e := events.Event{
		Fields: map[string]interface{}{
			"zone":       string(zone),
			"used":       used,
			"limit":      limit,
			"percentage": pct * 100,
		},
	}
	switch lvl {
	case levelCaution:
		e.Type, e.Severity, e.Message = events.QuotaCaution, events.SeverityInfo, "Quota usage above caution threshold"
	case levelThrottle:
		e.Type, e.Severity, e.Message = events.QuotaThrottled, events.SeverityWarning, "Quota nearly exhausted, throttling calls"
	case levelExceeded:
		e.Type, e.Severity, e.Message = events.QuotaExceeded, events.SeverityError, "Quota exhausted"
	}
	t.events.Publish(e)
}

func (t *Tracker) resetSignalsLocked() {
	t.levels = make(map[models.Zone]level)
	t.discrepancy = make(map[models.Zone]bool)
}

// exhaustedRecord stands in for a record the store failed to return
func (t *Tracker) exhaustedRecord(now time.Time) *models.UsageRecord {
	rec := models.NewUsageRecord(t.cfg.Service, now, t.cfg.Zone1Limit, t.cfg.Zone2Limit)
	for _, z := range models.Zones {
		zu := rec.Zone(z)
		zu.Used = zu.Limit
		zu.LocalCalls = zu.Limit
		zu.HeaderSeen = true
	}
	return rec
}

func (t *Tracker) persistLocked(ctx context.Context) {
	if t.unverified {
		return
	}
	if err := t.store.SaveUsage(ctx, t.rec.Clone()); err != nil {
		t.logger.WithError(err).WithField("day", t.rec.Day).Warn("Failed to persist usage record")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
