package serialmux

import (
	"context"

	"github.com/banshee-data/clocktrack/internal/dwt"
	"github.com/banshee-data/clocktrack/internal/monitoring"
)

// Pairs subscribes to mux and forwards every parsable line as a pair. Lines
// that fail to parse are logged and skipped. The returned channel is closed
// when ctx is done or the mux closes the subscription.
func Pairs(ctx context.Context, mux SerialMuxInterface) <-chan dwt.Pair {
	id, lines := mux.Subscribe()
	out := make(chan dwt.Pair)
	logf := monitoring.Prefixed("[serial] ")

	go func() {
		defer close(out)
		defer mux.Unsubscribe(id)

		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				p, ok, err := ParsePairLine(line)
				if err != nil {
					logf("skipping line %q: %v", line, err)
					continue
				}
				if !ok {
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
