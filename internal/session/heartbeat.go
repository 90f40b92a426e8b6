package session

import (
	"time"

	"greyboard.app/internal/protocol"
)

// Heartbeat periodically pushes every client's pointer position to the
// board it is on. Each board only ever sees its own subscribers' pointers;
// the fan-out is scoped to the board group.
type Heartbeat struct {
	transport Transport
	registry  *Registry
	presence  *Presence
	interval  time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewHeartbeat(transport Transport, registry *Registry, presence *Presence, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		transport: transport,
		registry:  registry,
		presence:  presence,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (h *Heartbeat) Start() {
	go h.run()
}

// Stop halts the broadcaster and waits for its goroutine to exit.
func (h *Heartbeat) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Heartbeat) run() {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Heartbeat) tick() {
	for _, b := range h.registry.ListAll() {
		clients := h.presence.ListByBoard(b.Slug)
		if len(clients) == 0 {
			continue
		}
		pointers := make(map[string][3]float64, len(clients))
		for _, c := range clients {
			pointers[c.ID] = [3]float64{c.PointerX, c.PointerY, float64(c.PointerType)}
		}
		h.transport.SendGroup(b.Slug, protocol.HeartBeat(pointers))
	}
}
