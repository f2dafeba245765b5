package reload

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ReloadMessage is the event data sent to pages when they should reload.
const ReloadMessage = "reload"

const heartbeatInterval = 30 * time.Second

var _ http.Handler = &Broker{}

// Broker fans messages out to every connected page. It serves the
// subscriptions itself, as a Server-Sent Events stream.
type Broker struct {
	mu      sync.Mutex
	clients map[chan string]struct{}
	logger  *slog.Logger
}

// NewBroker returns a Broker with no clients. A nil logger means
// slog.Default().
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		clients: map[chan string]struct{}{},
		logger:  logger,
	}
}

// Subscribe registers a client. Messages arrive on the returned channel until
// the returned function is called.
func (b *Broker) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 1)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
		})
	}
}

// Clients returns the number of subscribed clients.
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast sends msg to every client and returns how many received it. A
// client that still has an undelivered message is skipped rather than waited
// on; it's going to reload anyway.
func (b *Broker) Broadcast(msg string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var delivered int
	for ch := range b.clients {
		select {
		case ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Reload broadcasts ReloadMessage. It has the signature Watcher.OnChange
// expects for its action.
func (b *Broker) Reload() error {
	n := b.Broadcast(ReloadMessage)
	b.logger.Debug("reload: notified clients", "clients", n)
	return nil
}

// ServeHTTP streams messages to the client as Server-Sent Events until the
// request is cancelled.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// subscribed before the client sees an open stream
	msgs, unsubscribe := b.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-msgs:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				b.logger.DebugContext(ctx, "reload: error writing event", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
