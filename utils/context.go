package utils

import (
	"context"
	"time"
)

// mongoOpTimeout bounds a single repository call. Check-in runs and
// browser bypass manage their own, much longer deadlines.
const mongoOpTimeout = 10 * time.Second

// WithTimeout derives a context bounded to one storage operation.
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, mongoOpTimeout)
}
