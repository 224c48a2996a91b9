package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	json "github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Broadcaster reenvía cada evento del pipeline a los clientes websocket.
// Implementa ports.Notifier para registrarse en el dispatcher.
type Broadcaster struct {
	risk     domain.RiskConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

var _ ports.Notifier = (*Broadcaster)(nil)

// NewBroadcaster crea un broadcaster sin clientes.
func NewBroadcaster(risk domain.RiskConfig) *Broadcaster {
	return &Broadcaster{
		risk:     risk,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Notify envía ev a todos los clientes. Un cliente que falla se desconecta.
func (b *Broadcaster) Notify(_ context.Context, ev domain.Event) error {
	msg, err := json.Marshal(toEvent(ev, b.risk))
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("websocket write failed, dropping client", "remote", c.RemoteAddr(), "err", err)
			c.Close()
			delete(b.clients, c)
		}
	}
	return nil
}

// Clients devuelve el número de clientes conectados.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close desconecta a todos los clientes.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.Close()
		delete(b.clients, c)
	}
}

// Handler acepta conexiones websocket. Los mensajes del cliente se descartan.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "err", err)
			return
		}
		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()

		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.clients, conn)
				b.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
