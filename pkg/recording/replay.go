package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Andreas0Cool/citra3ds/pkg/transport"
)

// ReplayStats summarizes one playback.
type ReplayStats struct {
	Sent    int
	Dropped int
	Elapsed time.Duration
}

// Replay re-sends a recording over the transport, pacing each message by its
// recorded offset. Messages that cannot be sent while the link is down are
// dropped, matching live streaming semantics; the transport keeps retrying
// the connection on its own schedule.
func Replay(ctx context.Context, rec *Reader, tr transport.Transport) (ReplayStats, error) {
	var stats ReplayStats
	start := time.Now()
	defer func() { stats.Elapsed = time.Since(start) }()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		record, err := rec.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		if wait := record.Offset - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return stats, ctx.Err()
			case <-timer.C:
			}
		}

		tr.Maintain()
		wire, err := record.Message.Encode()
		if err != nil {
			return stats, fmt.Errorf("recording: replaying record %d: %w", stats.Sent+stats.Dropped, err)
		}
		if err := tr.Send(wire); err != nil {
			stats.Dropped++
		} else {
			stats.Sent++
		}
		tr.PollAck()
	}
}
