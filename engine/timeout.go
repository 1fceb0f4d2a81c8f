package engine

import (
	"fmt"
	"time"

	"github.com/otcdesk/otcdesk/domain"
)

// scheduler posts deadline tasks back onto the engine loop. The after
// hook is swappable so tests can fire timers deterministically.
type scheduler struct {
	e     *Engine
	after func(d time.Duration, f func()) *time.Timer
}

func newScheduler(e *Engine) *scheduler {
	return &scheduler{e: e, after: time.AfterFunc}
}

// closeAfter schedules a self-invalidating close for the peer. The
// peer's state is captured at scheduling time; the deadline only fires
// pullOrReject if the state is unchanged and the full duration has
// elapsed since the last transition, so a peer that advanced and
// re-entered a similar-looking state is left alone.
func (s *scheduler) closeAfter(d time.Duration, peer *domain.Peer) {
	oldState := peer.State
	handle := peer.Validity.Handle()

	s.after(d, func() {
		s.e.post(func() {
			if !handle.Valid() || peer.State != oldState {
				return
			}
			if time.Since(peer.StateTimestamp) < d {
				return
			}
			s.e.log.Debug(fmt.Sprintf(`closing peer %s after %s timeout`, peer, d))
			s.e.pullOrReject(peer)
		})
	})
}

// fireAfter runs a task on the loop after the given delay.
func (s *scheduler) fireAfter(d time.Duration, task func()) {
	s.after(d, func() {
		s.e.post(task)
	})
}
