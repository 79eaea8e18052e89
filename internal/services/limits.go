package services

import (
	"time"

	"hoyn/internal/ratelimit"
	"hoyn/internal/structures"
)

const scanThrottleIdle = 10 * time.Minute

func NewMessageLimiter(conf *structures.Config) ratelimit.Limiter {
	return ratelimit.NewSlidingWindow(conf.Messaging.RateLimitWindow, conf.Messaging.RateLimitMaxEvents, nil)
}

// NewScanThrottle bounds scan lookups per client address.
func NewScanThrottle(conf *structures.Config) *ratelimit.KeyedThrottle {
	return ratelimit.NewKeyedThrottle(conf.QR.ScanRPS, conf.QR.ScanBurst, scanThrottleIdle, nil)
}
