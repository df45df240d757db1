//go:build !tinygo && !cgo

package hal

import (
	"context"
	"fmt"
)

func RunWindow(_ context.Context, _ HAL, _ int) error {
	return fmt.Errorf("window mode requires cgo (build/run with CGO_ENABLED=1): %w", ErrNotImplemented)
}
