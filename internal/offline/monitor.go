package offline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
)

// Prober checks platform reachability.
type Prober interface {
	Health(ctx context.Context, timeout time.Duration) error
}

// ConnectivityListener is notified on online/offline transitions.
type ConnectivityListener interface {
	SetConnectivity(ctx context.Context, online bool)
}

// Monitor probes the platform on a fixed interval and fans transitions
// out to listeners. It starts optimistic: the widget assumes online
// until the first probe says otherwise.
type Monitor struct {
	prober    Prober
	interval  time.Duration
	timeout   time.Duration
	logger    *logger.Logger
	listeners []ConnectivityListener

	mu     sync.Mutex
	online bool
}

func NewMonitor(p Prober, interval, timeout time.Duration, log *logger.Logger, listeners ...ConnectivityListener) *Monitor {
	if interval == 0 {
		interval = 30 * time.Second
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		prober:    p,
		interval:  interval,
		timeout:   timeout,
		logger:    log,
		listeners: listeners,
		online:    true,
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start runs the probe loop until ctx is cancelled. The first probe
// fires immediately so a widget loading while offline learns it within
// one round trip rather than one interval.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.probe(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// ReportFailure lets other components force an immediate recheck after
// a network-class send failure, instead of waiting out the interval.
func (m *Monitor) ReportFailure(ctx context.Context) {
	go m.probe(ctx)
}

func (m *Monitor) probe(ctx context.Context) {
	err := m.prober.Health(ctx, m.timeout)
	online := err == nil

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info("platform reachable again")
	} else {
		m.logger.Warn("platform unreachable", zap.Error(err))
	}
	for _, l := range m.listeners {
		l.SetConnectivity(ctx, online)
	}
}
