package http

import (
	"github.com/WeShipHQ/justvibecode/audit"
	"github.com/WeShipHQ/justvibecode/logger"
	"github.com/WeShipHQ/justvibecode/metrics"
)

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate's structured logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// WithMetrics sets the gate's metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gate) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithAuditWriter sets the writer that receives settled-payment records.
func WithAuditWriter(w audit.Writer) Option {
	return func(g *Gate) {
		if w != nil {
			g.auditWriter = w
		}
	}
}
