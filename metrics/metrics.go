// Package metrics defines the recorder contract for payment gate
// observability, with Prometheus and no-op implementations.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
