package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/tho-bre/event-flow/internal/domain"
)

const writeTimeout = 10 * time.Second

// ChangeSubscriber streams store change notifications.
type ChangeSubscriber interface {
	Subscribe(match func(domain.Change) bool) (<-chan domain.Change, func())
}

// HandleWatch upgrades to a websocket and pushes the event's changes as
// JSON, starting with a snapshot. The socket is closed when the event is
// deleted, when the association is deactivated, or when the caller's
// session stops resolving; the session is rechecked on every ping.
func HandleWatch(events EventReader, changes ChangeSubscriber, gate Gate, pingInterval time.Duration, logger *slog.Logger) http.HandlerFunc {
	// Bearer tokens, not cookies, authenticate the socket, so any origin
	// may connect.
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		owner := associationFrom(ctx)
		event, err := events.GetEvent(ctx, owner.ID, chi.URLParam(r, "eventID"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		token := bearerToken(r)

		feed, cancelFeed := changes.Subscribe(func(c domain.Change) bool {
			return c.EventID == event.ID && c.OwnerID == owner.ID
		})
		defer cancelFeed()
		identity, cancelIdentity := gate.Subscribe(func(e domain.IdentityEvent) bool {
			return e.AssociationID == owner.ID && e.Kind == domain.IdentityDeactivated
		})
		defer cancelIdentity()

		wc, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("watch upgrade failed", "event_id", event.ID, "err", err)
			return
		}
		defer wc.Close()

		// The client never sends anything; reading only surfaces the close.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := wc.NextReader(); err != nil {
					return
				}
			}
		}()

		send := func(c domain.Change) error {
			_ = wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			return wc.WriteJSON(c)
		}
		closeWith := func(code int, reason string) {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = wc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		}

		snapshot := domain.Change{
			EventID: event.ID,
			OwnerID: event.OwnerID,
			Kind:    domain.ChangeSnapshot,
			Total:   event.Total,
			Version: event.Version,
		}
		if err := send(snapshot); err != nil {
			return
		}

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case <-gone:
				return
			case c, ok := <-feed:
				if !ok {
					closeWith(websocket.CloseGoingAway, "server shutting down")
					return
				}
				if err := send(c); err != nil {
					return
				}
				if c.Kind == domain.ChangeDeleted {
					closeWith(websocket.CloseNormalClosure, "event deleted")
					return
				}
			case <-identity:
				closeWith(websocket.ClosePolicyViolation, "account deactivated")
				return
			case <-ping.C:
				if _, err := gate.Resolve(ctx, token); err != nil {
					closeWith(websocket.ClosePolicyViolation, "session ended")
					return
				}
				if err := wc.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			}
		}
	}
}
