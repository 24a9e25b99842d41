package admin

import (
	"context"
	"log"
	"net/http"
	"sync"

	"fernway/checkout"
	"fernway/rdx"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins — adjust for production if needed
		return true
	},
}

// Stream fans order events out to connected admin dashboards. Events arrive
// over Redis pub/sub, so every instance behind a load balancer sees orders
// created on any of them.
type Stream struct {
	cache *rdx.Client

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewStream(cache *rdx.Client) *Stream {
	return &Stream{cache: cache, conns: make(map[*websocket.Conn]bool)}
}

// Run subscribes to the order channel and relays messages until ctx is
// cancelled. Call it in a goroutine from main.
func (s *Stream) Run(ctx context.Context) {
	sub := s.cache.Subscribe(ctx, checkout.OrdersChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast([]byte(msg.Payload))
		}
	}
}

// Connect upgrades an admin client and keeps the connection registered until
// it drops.
func (s *Stream) Connect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("order stream upgrade:", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()

	for {
		// Keeps the connection alive until the client disconnects
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Stream) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}
