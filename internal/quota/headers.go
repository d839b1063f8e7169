package quota

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Remote quota response headers
const (
	HeaderZone1Usage = "X-Reader-Zone1-Usage"
	HeaderZone1Limit = "X-Reader-Zone1-Limit"
	HeaderZone2Usage = "X-Reader-Zone2-Usage"
	HeaderZone2Limit = "X-Reader-Zone2-Limit"
	HeaderResetAfter = "X-Reader-Limits-Reset-After"
)

var quotaHeaders = []string{HeaderZone1Usage, HeaderZone1Limit, HeaderZone2Usage, HeaderZone2Limit, HeaderResetAfter}

// Observation is a possibly partial set of remote quota values.
// A nil field was absent or unparseable.
type Observation struct {
	Zone1Used         *int64
	Zone1Limit        *int64
	Zone2Used         *int64
	Zone2Limit        *int64
	ResetAfterSeconds *int64
}

// Empty reports whether no value was observed
func (o Observation) Empty() bool {
	return o.Zone1Used == nil && o.Zone1Limit == nil &&
		o.Zone2Used == nil && o.Zone2Limit == nil &&
		o.ResetAfterSeconds == nil
}

// ParseHeaders extracts quota values from a response. Malformed values are skipped.
func ParseHeaders(h http.Header) Observation {
	return Observation{
		Zone1Used:         parseCount(h.Get(HeaderZone1Usage)),
		Zone1Limit:        parseCount(h.Get(HeaderZone1Limit)),
		Zone2Used:         parseCount(h.Get(HeaderZone2Usage)),
		Zone2Limit:        parseCount(h.Get(HeaderZone2Limit)),
		ResetAfterSeconds: parseCount(h.Get(HeaderResetAfter)),
	}
}

// OnResponse reconciles the tracker with the quota headers of a response.
// It never fails; absent or malformed headers leave state untouched.
func (t *Tracker) OnResponse(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	for _, name := range quotaHeaders {
		if raw := h.Get(name); strings.TrimSpace(raw) != "" && parseCount(raw) == nil {
			t.logger.WithFields(logrus.Fields{
				"header": name,
				"value":  raw,
			}).Warn("Ignoring malformed quota header")
		}
	}
	obs := ParseHeaders(h)
	if obs.Empty() {
		return
	}
	t.Apply(ctx, obs)
}

// parseCount accepts values like "1,234", " 50 " or "3600.75" (fraction truncated)
func parseCount(raw string) *int64 {
	v := strings.NewReplacer(",", "", " ", "").Replace(raw)
	if v == "" {
		return nil
	}
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
		if v == "" {
			v = "0"
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
