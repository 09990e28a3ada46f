package core

import (
	"context"
	"time"
)

// Run drives the single-threaded event loop described in spec.md §5: it
// consumes inbound info frames, inbound orders frames (only subscribed to
// in observer mode, spec.md §4.3), and periodically calls SendOrders.
// Everything this method does runs on the calling goroutine; Run must not
// be called concurrently with direct calls to the mutators, HandleInfoFrame,
// HandleOrdersFrame, or SendOrders on the same Sheriff.
//
// Run returns when ctx is done, or when the Bus's info subscription fails.
// The script engine is deliberately not driven from here: script.Engine
// does not subscribe to Sheriff's event registry and has no timer of its
// own; whoever runs a script calls Engine.Tick for wait_ms/wait-status
// polling, keeping core free of any dependency on the script package
// (spec.md §9 "cooperative control flow").
func (s *Sheriff) Run(ctx context.Context) error {
	infoCh, err := s.cfg.Bus.SubscribeInfo(ctx)
	if err != nil {
		return newError("Sheriff.Run", "bus", "", err)
	}

	var ordersCh <-chan OrdersFrame
	if s.cfg.IsObserver {
		ordersCh, err = s.cfg.Bus.SubscribeOrders(ctx)
		if err != nil {
			return newError("Sheriff.Run", "bus", "", err)
		}
	}

	ticker := time.NewTicker(s.cfg.OrdersInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-infoCh:
			if !ok {
				return nil
			}
			if err := s.HandleInfoFrame(frame); err != nil {
				s.cfg.Logger.Error("failed to handle info frame", map[string]interface{}{
					"host": frame.Host, "error": err.Error(),
				})
			}

		case frame, ok := <-ordersCh:
			if !ok {
				ordersCh = nil
				continue
			}
			if err := s.HandleOrdersFrame(frame); err != nil {
				s.cfg.Logger.Error("failed to handle orders frame", map[string]interface{}{
					"host": frame.Host, "error": err.Error(),
				})
			}

		case <-ticker.C:
			if s.cfg.IsObserver {
				continue
			}
			if err := s.SendOrders(); err != nil {
				s.cfg.Logger.Warn("send orders failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
