package health

import (
	"context"
	"fmt"
	"runtime"
)

// GoroutineCountCheck fails when the process holds more goroutines than max,
// a cheap proxy for leaked work.
func GoroutineCountCheck(max int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return fmt.Errorf("too many goroutines: %d > %d", n, max)
		}
		return nil
	}
}
