package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/config"
)

// Checker runs alert checks on an interval, suppressing repeats of an
// alert type until its repeat window passes.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	lastSent map[AlertType]time.Time
	now      func() time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		lastSent:  make(map[AlertType]time.Time),
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects, evaluates, and sends once. It returns the alerts sent.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	var due []Alert
	now := c.now()
	repeat := time.Duration(c.cfg.RepeatAfterMins) * time.Minute
	for _, a := range c.alerter.Evaluate(snap) {
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < repeat {
			continue
		}
		due = append(due, a)
	}
	if len(due) == 0 {
		log.Debug("monitoring: no alerts due")
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, due)
	if sent == len(due) {
		for _, a := range due {
			c.lastSent[a.Type] = now
		}
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_due", len(due)),
		zap.Int("alerts_sent", sent),
	)
	return due
}
