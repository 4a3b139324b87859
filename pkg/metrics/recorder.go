package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Upstream names tracked by the recorder.
const (
	APIPC     = "pc"
	APIStocks = "stocks"
)

// APIHealth is the success/failure history of one upstream.
// Timestamps are epoch milliseconds; zero means never.
type APIHealth struct {
	OK        int64  `json:"ok"`
	Error     int64  `json:"error"`
	LastError string `json:"lastError"`
	LastOKAt  int64  `json:"lastOkAt"`
	LastErrAt int64  `json:"lastErrAt"`
}

// Snapshot is a point-in-time copy of the recorder.
type Snapshot struct {
	Requests int64                `json:"requests"`
	API      map[string]APIHealth `json:"api"`
}

// Recorder holds process-lifetime counters. Nothing is ever reset.
type Recorder struct {
	requests atomic.Int64
	now      func() time.Time

	mu  sync.Mutex
	api map[string]*APIHealth
}

// NewRecorder creates a recorder tracking the given upstream names.
// With no names it tracks APIPC and APIStocks.
func NewRecorder(names ...string) *Recorder {
	if len(names) == 0 {
		names = []string{APIPC, APIStocks}
	}
	r := &Recorder{
		now: time.Now,
		api: make(map[string]*APIHealth, len(names)),
	}
	for _, name := range names {
		r.api[name] = &APIHealth{}
	}
	return r
}

// SetClock replaces the time source (for testing).
func (r *Recorder) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// IncRequests counts one inbound request.
func (r *Recorder) IncRequests() {
	r.requests.Add(1)
	requestsTotal.Inc()
}

// MarkOK records a successful call to the named upstream.
// Unknown names are ignored.
func (r *Recorder) MarkOK(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.api[name]
	if !ok {
		return
	}
	h.OK++
	h.LastOKAt = r.now().UnixMilli()
	apiResultsTotal.WithLabelValues(name, "ok").Inc()
}

// MarkError records a failed call to the named upstream.
// Unknown names are ignored.
func (r *Recorder) MarkError(name string, err error) {
	reason := "unknown_error"
	if err != nil {
		reason = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.api[name]
	if !ok {
		return
	}
	h.Error++
	h.LastErrAt = r.now().UnixMilli()
	h.LastError = reason
	apiResultsTotal.WithLabelValues(name, "error").Inc()
}

// Requests returns the inbound request total.
func (r *Recorder) Requests() int64 {
	return r.requests.Load()
}

// Snapshot returns a copy safe to serialize while handlers keep recording.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	api := make(map[string]APIHealth, len(r.api))
	for name, h := range r.api {
		api[name] = *h
	}
	return Snapshot{
		Requests: r.requests.Load(),
		API:      api,
	}
}
