package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/resilience"
)

// Breaker fails while cb is not closed.
func Breaker(cb *resilience.CircuitBreaker) Check {
	return func(context.Context) error {
		if st := cb.GetState(); st != resilience.StateClosed {
			return fmt.Errorf("circuit %s", st)
		}
		return nil
	}
}

// Dropped fails once dropped reports any lost events.
func Dropped(dropped func() int64) Check {
	return func(context.Context) error {
		if n := dropped(); n > 0 {
			return fmt.Errorf("%d events dropped", n)
		}
		return nil
	}
}

// Loaded fails when size reports an empty table.
func Loaded(size func() int) Check {
	return func(context.Context) error {
		if size() == 0 {
			return errors.New("nothing loaded")
		}
		return nil
	}
}
