package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
)

type scriptedProber struct {
	mu  sync.Mutex
	err error
}

func (p *scriptedProber) Health(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *scriptedProber) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type recordingListener struct {
	mu     sync.Mutex
	states []bool
}

func (l *recordingListener) SetConnectivity(ctx context.Context, online bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, online)
}

func (l *recordingListener) observed() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bool, len(l.states))
	copy(out, l.states)
	return out
}

func TestMonitorDetectsTransitions(t *testing.T) {
	prober := &scriptedProber{err: errors.New("connection refused")}
	listener := &recordingListener{}
	m := NewMonitor(prober, 10*time.Millisecond, time.Millisecond, logger.NewNop(), listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	eventually(t, func() bool { return !m.Online() }, "offline detected")
	assert.Equal(t, []bool{false}, listener.observed())

	prober.set(nil)
	eventually(t, func() bool { return m.Online() }, "recovery detected")
	assert.Equal(t, []bool{false, true}, listener.observed())
}

func TestMonitorNoNotificationWithoutChange(t *testing.T) {
	prober := &scriptedProber{}
	listener := &recordingListener{}
	m := NewMonitor(prober, 5*time.Millisecond, time.Millisecond, logger.NewNop(), listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	// Healthy probes against an already-online monitor stay quiet.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, m.Online())
	assert.Empty(t, listener.observed())
}

func TestMonitorReportFailureForcesRecheck(t *testing.T) {
	prober := &scriptedProber{}
	listener := &recordingListener{}
	// Interval long enough that only the forced probe can fire.
	m := NewMonitor(prober, time.Hour, time.Millisecond, logger.NewNop(), listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	time.Sleep(10 * time.Millisecond) // let the initial probe pass

	prober.set(errors.New("connection refused"))
	m.ReportFailure(ctx)

	eventually(t, func() bool { return !m.Online() }, "forced probe observed the outage")
}
