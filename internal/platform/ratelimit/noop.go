package ratelimit

import (
	"context"

	"github.com/knppkp/pollboard/internal/domain"
)

// Noop is the throttle used when rate limiting is disabled via config.
type Noop struct{}

func NewNoop() Noop {
	return Noop{}
}

func (Noop) Allow(ctx context.Context, userID domain.UserID, origin string) error {
	return nil
}

var _ domain.VoteThrottle = Noop{}
