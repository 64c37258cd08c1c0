package contxt

import (
	"context"
	"time"
)

// NewContext returns a background context bounded by timeout.
func NewContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return WithTimeout(context.Background(), timeout)
}

// WithTimeout bounds parent by timeout. A non-positive timeout only inherits
// parent's cancellation.
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
