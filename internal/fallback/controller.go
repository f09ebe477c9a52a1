// Package fallback owns the degraded-state presentation shown to the
// user and the input gate that goes with it. At most one presentation is
// active; a new error only preempts the current one at equal or higher
// severity.
package fallback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/errclass"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/metrics"
)

// Action names a recovery affordance the UI may offer.
type Action string

const (
	ActionRetry          Action = "retry"
	ActionRetryDelayed   Action = "retry_delayed"
	ActionWait           Action = "wait"
	ActionOfflineMode    Action = "offline_mode"
	ActionContactSupport Action = "contact_support"
	ActionContinue       Action = "continue"
)

// Presentation is the degraded-state view handed to the UI boundary.
type Presentation struct {
	Kind             string   `json:"kind"`
	Severity         string   `json:"severity"`
	Message          string   `json:"message"`
	CountdownMs      int64    `json:"countdown_ms,omitempty"`
	AvailableActions []Action `json:"available_actions"`
	BlocksInput      bool     `json:"blocks_input"`

	severity errclass.Severity
}

// kindOffline is not an error classification; it is synthesized from the
// connectivity monitor.
const kindOffline = "offline"

// Controller implements the session manager's Reporter. It translates
// classified errors and connectivity changes into the single active
// presentation, and gates sending while a blocking condition holds.
type Controller struct {
	logger *logger.Logger

	mu          sync.Mutex
	active      *Presentation
	offline     bool
	maintenance bool
	rateLimited bool
	clearTimer  *time.Timer
	changeFns   []func(*Presentation)

	// notifyCh serializes listener callbacks so transitions are observed
	// in the order they happened.
	notifyCh chan *Presentation
}

func NewController(log *logger.Logger) *Controller {
	c := &Controller{
		logger:   log,
		notifyCh: make(chan *Presentation, 64),
	}
	go c.dispatch()
	return c
}

func (c *Controller) dispatch() {
	for p := range c.notifyCh {
		c.mu.Lock()
		fns := make([]func(*Presentation), len(c.changeFns))
		copy(fns, c.changeFns)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(p)
		}
	}
}

// OnChange registers a listener for presentation changes. A nil
// presentation means the degraded state cleared.
func (c *Controller) OnChange(fn func(*Presentation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changeFns = append(c.changeFns, fn)
}

// Active returns the current presentation, nil when healthy.
func (c *Controller) Active() *Presentation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	cp := *c.active
	return &cp
}

// SendAllowed reports whether outbound sends may proceed. Offline does
// not block here: offline sends divert to the queue instead.
func (c *Controller) SendAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rateLimited || c.maintenance {
		return false
	}
	if c.active != nil && c.active.BlocksInput && c.active.Kind != kindOffline {
		return false
	}
	return true
}

// Report consumes one classified failure.
func (c *Controller) Report(cl errclass.Classification) {
	p := c.present(cl)

	c.mu.Lock()
	// Low severity resolves silently; nothing to show.
	if cl.Severity == errclass.SeverityLow {
		c.mu.Unlock()
		return
	}
	if c.active != nil && p.severity < c.active.severity {
		c.mu.Unlock()
		c.logger.Debug("presentation suppressed by higher-severity state",
			zap.String("kind", p.Kind),
			zap.String("active", c.active.Kind))
		return
	}

	switch cl.Kind {
	case errclass.KindRateLimit:
		c.rateLimited = true
		c.armRateLimitClear(cl.RetryAfter)
	case errclass.KindMaintenance:
		c.maintenance = true
	}

	c.setActiveLocked(&p)
	c.mu.Unlock()
}

// ReportSuccess clears any recoverable presentation after a successful
// round trip. Rate-limit and maintenance states outlive a success; they
// clear on their own terms.
func (c *Controller) ReportSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return
	}
	switch c.active.Kind {
	case errclass.KindRateLimit.String(), errclass.KindMaintenance.String(), kindOffline:
		return
	}
	c.setActiveLocked(nil)
}

// SetConnectivity synthesizes the offline presentation. The offline
// state always preempts: nothing else matters while unreachable.
func (c *Controller) SetConnectivity(ctx context.Context, online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offline = !online
	if !online {
		c.setActiveLocked(&Presentation{
			Kind:     kindOffline,
			Severity: errclass.SeverityCritical.String(),
			Message:  "Connection lost. Messages will be queued and sent when you are back online.",
			AvailableActions: []Action{
				ActionOfflineMode, ActionRetry,
			},
			BlocksInput: false,
			severity:    errclass.SeverityCritical,
		})
		return
	}

	// A successful probe also ends a maintenance window: the same 503s
	// that set it fail the probe until the platform is back.
	if c.maintenance {
		c.maintenance = false
		if c.active != nil && c.active.Kind == errclass.KindMaintenance.String() {
			c.setActiveLocked(nil)
			return
		}
	}

	if c.active != nil && c.active.Kind == kindOffline {
		c.setActiveLocked(nil)
	}
}

// ClearMaintenance is called when a probe succeeds against a platform
// that previously advertised maintenance.
func (c *Controller) ClearMaintenance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.maintenance {
		return
	}
	c.maintenance = false
	if c.active != nil && c.active.Kind == errclass.KindMaintenance.String() {
		c.setActiveLocked(nil)
	}
}

// Dismiss clears the active presentation at the user's request. Blocking
// flags stay: dismissing the banner does not lift the rate limit.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return
	}
	if c.rateLimited || c.maintenance {
		return
	}
	c.setActiveLocked(nil)
}

func (c *Controller) armRateLimitClear(after time.Duration) {
	if after <= 0 {
		after = errclass.DefaultRateLimitDelay
	}
	if c.clearTimer != nil {
		c.clearTimer.Stop()
	}
	c.clearTimer = time.AfterFunc(after, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.rateLimited = false
		if c.active != nil && c.active.Kind == errclass.KindRateLimit.String() {
			c.setActiveLocked(nil)
		}
		c.logger.Info("rate limit window elapsed, sends unblocked")
	})
}

// setActiveLocked swaps the presentation and notifies listeners. Caller
// holds c.mu.
func (c *Controller) setActiveLocked(p *Presentation) {
	c.active = p

	kind := "cleared"
	if p != nil {
		kind = p.Kind
	}
	metrics.FallbackTransitions.WithLabelValues(kind).Inc()

	if p == nil {
		c.logger.Info("degraded state cleared")
	} else {
		c.logger.Warn("degraded state active",
			zap.String("kind", p.Kind),
			zap.String("severity", p.Severity),
			zap.Bool("blocks_input", p.BlocksInput))
	}

	var cp *Presentation
	if p != nil {
		v := *p
		cp = &v
	}
	select {
	case c.notifyCh <- cp:
	default:
		c.logger.Warn("presentation listeners lagging, dropping notification")
	}
}

// present maps a classification to its user-facing shape.
func (c *Controller) present(cl errclass.Classification) Presentation {
	p := Presentation{
		Kind:     cl.Kind.String(),
		Severity: cl.Severity.String(),
		severity: cl.Severity,
	}

	switch cl.Kind {
	case errclass.KindNetwork:
		p.Message = "We are having trouble reaching the assistant. Retrying automatically."
		p.AvailableActions = []Action{ActionRetry, ActionOfflineMode}
	case errclass.KindTimeout:
		p.Message = "The assistant is taking longer than usual. You can retry now or wait."
		p.AvailableActions = []Action{ActionRetry, ActionWait}
	case errclass.KindRateLimit:
		delay := cl.RetryAfter
		if delay <= 0 {
			delay = errclass.DefaultRateLimitDelay
		}
		p.Message = "Too many messages in a short time. Sending resumes automatically."
		p.CountdownMs = delay.Milliseconds()
		p.AvailableActions = []Action{ActionWait}
		p.BlocksInput = true
	case errclass.KindAuthentication:
		p.Message = "This chat widget could not authenticate. Please contact support."
		p.AvailableActions = []Action{ActionContactSupport}
		p.BlocksInput = true
	case errclass.KindServer:
		p.Message = "The assistant hit an internal error. Retrying shortly."
		p.AvailableActions = []Action{ActionRetryDelayed, ActionWait}
	case errclass.KindQuotaExceeded:
		p.Message = "The message quota for this widget is exhausted."
		p.AvailableActions = []Action{ActionContactSupport}
		p.BlocksInput = true
	case errclass.KindMaintenance:
		p.Message = "The assistant is down for maintenance. Please check back soon."
		p.AvailableActions = []Action{ActionWait}
		p.BlocksInput = true
	case errclass.KindValidation:
		p.Message = "That message could not be accepted. Please adjust it and try again."
		p.AvailableActions = []Action{ActionContinue}
	default:
		p.Message = "Something went wrong. You can retry your last message."
		p.AvailableActions = []Action{ActionRetry, ActionContinue}
	}

	return p
}
