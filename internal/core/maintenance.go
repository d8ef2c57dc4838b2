package core

import (
	"context"
	"time"
)

// Run sweeps empty rooms every SweepInterval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.opts.SweepInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(d.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.rooms.Sweep(); n > 0 {
				d.log.Info().Int("rooms", n).Msg("swept empty rooms")
			}
		}
	}
}
