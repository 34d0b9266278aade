package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// watchFunc starts a subscription whose snapshots go to send.
type watchFunc func(ctx context.Context, send func(any)) (domain.Unsubscribe, error)

// stream upgrades the connection and pushes every snapshot as a JSON text
// frame until the client goes away. Inbound frames are discarded.
func stream(w http.ResponseWriter, r *http.Request, watch watchFunc) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("route", routeOf(r)).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var mu sync.Mutex
	send := func(v any) {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			cancel()
		}
	}

	unsub, err := watch(ctx, send)
	if err != nil {
		mu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		mu.Unlock()
		log.Warn().Err(err).Str("route", routeOf(r)).Msg("subscription failed")
		return
	}
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (h *Handlers) streamEntities(w http.ResponseWriter, r *http.Request) {
	f := filtersFrom(r)
	if _, err := app.ApplyQueryFilters(domain.Query{}, f); err != nil {
		writeError(w, err)
		return
	}
	stream(w, r, func(ctx context.Context, send func(any)) (domain.Unsubscribe, error) {
		return h.Live.WatchEntities(ctx, f, func(v []domain.EntityView) { send(v) })
	})
}

func (h *Handlers) streamEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Q.GetEntity(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	stream(w, r, func(ctx context.Context, send func(any)) (domain.Unsubscribe, error) {
		return h.Live.WatchEntity(ctx, id, func(v domain.EntityView) { send(v) })
	})
}

func (h *Handlers) streamReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Q.GetEntity(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	stream(w, r, func(ctx context.Context, send func(any)) (domain.Unsubscribe, error) {
		return h.Live.WatchReviews(ctx, id, func(v []domain.ReviewView) { send(v) })
	})
}
