package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
)

// Recovered converts a recovered panic value into an error
func Recovered(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

// SafeGo runs fn in a goroutine and logs instead of crashing when it panics
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Str("goroutine", name).Str("panic", fmt.Sprintf("%v", r)).Msg("Recovered from panic in goroutine")
			}
		}()
		fn()
	}()
}
