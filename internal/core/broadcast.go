package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Broadcast delivers event to every current member of room except exclude
// (empty for none) and returns how many sends succeeded. Members are
// snapshotted first; sends run concurrently outside any registry lock and a
// failing recipient never affects the others.
func (d *Dispatcher) Broadcast(ctx context.Context, room string, event any, exclude string) int {
	members := d.rooms.Members(room)
	if len(members) == 0 {
		return 0
	}

	data, err := json.Marshal(event)
	if err != nil {
		d.log.Error().Err(err).Str("room", room).Msg("marshal broadcast")
		return 0
	}

	var (
		g         errgroup.Group
		delivered atomic.Int64
	)
	if d.opts.FanoutConcurrency > 0 {
		g.SetLimit(d.opts.FanoutConcurrency)
	}

	for _, member := range members {
		member := member
		if member == exclude {
			continue
		}
		h, ok := d.conns.Handle(member)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := d.safeSend(ctx, h, data); err != nil {
				d.log.Warn().Err(err).Str("room", room).Str("client_id", member).Msg("broadcast send failed")
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load())
}

func (d *Dispatcher) safeSend(ctx context.Context, h Handle, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return d.send(ctx, h, data)
}
