//go:build !tinygo

package hal

import "context"

// RunHeadless keeps the host alive without a window. The OS goroutines do
// all the work; this only blocks until ctx ends.
func RunHeadless(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
