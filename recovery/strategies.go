package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/pdfforge/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy skips unreadable objects and keeps going. Every skipped
// object is logged and remembered in Errors.
type LenientStrategy struct {
	Logger observability.Logger

	mu     sync.Mutex
	Errors []error
}

func NewLenientStrategy(logger observability.Logger) *LenientStrategy {
	return &LenientStrategy{Logger: observability.OrNop(logger)}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	if ctx != nil && ctx.Err() != nil {
		return ActionFail
	}
	s.mu.Lock()
	s.Errors = append(s.Errors, fmt.Errorf("[%s] object %d %d at offset %d: %w",
		location.Component, location.ObjectNum, location.ObjectGen, location.ByteOffset, err))
	s.mu.Unlock()
	observability.OrNop(s.Logger).Warn("skipping unreadable object",
		observability.String("component", location.Component),
		observability.Int("object", location.ObjectNum),
		observability.Int64("offset", location.ByteOffset),
		observability.Error("error", err))
	return ActionSkip
}
