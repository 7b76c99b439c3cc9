package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/clipradar/telemetry"
)

// State is the externally visible monitoring state.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateActive     State = "active"
	StateRefreshing State = "refreshing"
)

// Notification is emitted when a poll surfaces clips not present in the
// previous result set.
type Notification struct {
	NewMoments int       `json:"newMoments"`
	Total      int       `json:"total"`
	DetectedAt time.Time `json:"detectedAt"`
}

// Snapshot is the read-only view the display layer renders from. Terminal
// states always carry either moments or an error message, never a silent
// indefinite loading state.
type Snapshot struct {
	State              State     `json:"state"`
	Moments            []Moment  `json:"moments"`
	UsingSyntheticData bool      `json:"usingSyntheticData"`
	LastDetectedAt     time.Time `json:"lastDetectedAt,omitzero"`
	LastError          string    `json:"lastError,omitempty"`
}

// Monitor owns the polling lifecycle around a Detector. One outstanding timer
// per active session; stopping deterministically cancels it, and an in-flight
// cycle at stop time completes but its result is discarded.
type Monitor struct {
	detector *Detector
	interval time.Duration
	opts     Options

	mu             sync.Mutex
	state          State
	moments        []Moment
	usingSynthetic bool
	lastDetectedAt time.Time
	lastErr        string
	cancel         context.CancelFunc
	gen            uint64
	subs           map[chan Notification]struct{}
}

// NewMonitor builds a monitor polling at interval (the product default is two
// minutes; tests shrink it).
func NewMonitor(d *Detector, interval time.Duration, opts Options) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Monitor{
		detector: d,
		interval: interval,
		opts:     opts,
		state:    StateIdle,
		subs:     make(map[chan Notification]struct{}),
	}
}

// Start runs one immediate detection cycle and, on success, arms the repeating
// timer. Starting while already active is a no-op. On failure the monitor
// returns to Idle and the error is both returned and kept in the snapshot.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		slog.Debug("monitor start ignored", slog.String("state", string(m.state)))
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.gen++
	gen := m.gen
	m.state = StateLoading
	m.mu.Unlock()

	res, err := m.detector.Detect(runCtx, m.opts)

	m.mu.Lock()
	if m.gen != gen {
		// Stopped while the initial cycle was in flight; discard.
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.state = StateIdle
		m.lastErr = err.Error()
		m.cancel = nil
		m.mu.Unlock()
		cancel()
		return err
	}
	m.applyLocked(res)
	m.state = StateActive
	m.mu.Unlock()

	telemetry.SetMonitorActive(true)
	go m.loop(runCtx, gen)
	slog.Info("monitoring started", slog.Duration("interval", m.interval))
	return nil
}

// Stop cancels the timer and returns the monitor to Idle. After Stop returns
// no further cycles are initiated; a cycle already in flight is discarded.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	m.state = StateIdle
	m.mu.Unlock()
	telemetry.SetMonitorActive(false)
	slog.Info("monitoring stopped")
}

// Refresh runs one cycle immediately, from any state, without touching the
// timer. The snapshot is updated unless the monitor was stopped mid-cycle.
func (m *Monitor) Refresh(ctx context.Context) (Result, error) {
	m.mu.Lock()
	gen := m.gen
	wasActive := m.state == StateActive
	if wasActive {
		m.state = StateRefreshing
	}
	m.mu.Unlock()

	res, err := m.detector.Detect(ctx, m.opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if wasActive && m.state == StateRefreshing {
		m.state = StateActive
	}
	if m.gen != gen {
		return res, err
	}
	if err != nil {
		m.lastErr = err.Error()
		return res, err
	}
	m.applyLocked(res)
	return res, nil
}

// Snapshot returns the current display state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	moments := make([]Moment, len(m.moments))
	copy(moments, m.moments)
	return Snapshot{
		State:              m.state,
		Moments:            moments,
		UsingSyntheticData: m.usingSynthetic,
		LastDetectedAt:     m.lastDetectedAt,
		LastError:          m.lastErr,
	}
}

// Subscribe registers a notification channel for new-moment events. The
// returned func unsubscribes; sends never block (slow consumers drop events).
func (m *Monitor) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 4)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}
}

func (m *Monitor) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.gen != gen || m.state != StateActive {
			m.mu.Unlock()
			return
		}
		m.state = StateRefreshing
		m.mu.Unlock()

		res, err := m.detector.Detect(ctx, m.opts)

		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return
		}
		if err != nil {
			// Keep polling; the previous result set stays on screen.
			m.lastErr = err.Error()
			slog.Warn("poll cycle failed", slog.Any("err", err))
		} else {
			m.applyLocked(res)
		}
		m.state = StateActive
		m.mu.Unlock()
	}
}

// applyLocked merges a cycle result into displayed state and emits a
// notification for ids unseen in the previous set. Caller holds m.mu.
func (m *Monitor) applyLocked(res Result) {
	newCount := countNewMoments(m.moments, res.Moments)
	hadPrevious := len(m.moments) > 0

	m.moments = res.Moments
	m.usingSynthetic = res.UsingSyntheticData
	m.lastDetectedAt = res.DetectedAt
	m.lastErr = ""

	if hadPrevious && newCount > 0 {
		if telemetry.NewMomentsTotal != nil {
			telemetry.NewMomentsTotal.Add(float64(newCount))
		}
		n := Notification{NewMoments: newCount, Total: len(res.Moments), DetectedAt: res.DetectedAt}
		for ch := range m.subs {
			select {
			case ch <- n:
			default:
			}
		}
		slog.Info("new viral moments detected", slog.Int("count", newCount))
	}
}

// countNewMoments returns how many ids in next were absent from prev.
func countNewMoments(prev, next []Moment) int {
	seen := make(map[string]struct{}, len(prev))
	for _, m := range prev {
		seen[m.ID] = struct{}{}
	}
	n := 0
	for _, m := range next {
		if _, ok := seen[m.ID]; !ok {
			n++
		}
	}
	return n
}
