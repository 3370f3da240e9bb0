package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"beegreen/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	ws   *websocket.Conn
	send chan []byte
}

// Hub fans engine events out to websocket clients
type Hub struct {
	clients    map[*client]struct{}
	clientsMux sync.Mutex
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Publish queues an event for every client. Clients that fall behind are
// dropped rather than stalling the engine.
func (h *Hub) Publish(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("WEB: Failed to marshal event: %v", err)
		return
	}
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- data:
		default:
			log.Printf("WEB: Dropping slow event client %s", cl.ws.RemoteAddr())
			delete(h.clients, cl)
			close(cl.send)
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	return len(h.clients)
}

func (h *Hub) remove(cl *client) {
	h.clientsMux.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.clientsMux.Unlock()
}

// Serve upgrades the request and streams events until the client leaves
func (h *Hub) Serve(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WEB: Websocket upgrade failed: %v", err)
		return
	}
	cl := &client{ws: ws, send: make(chan []byte, sendBuffer)}

	h.clientsMux.Lock()
	h.clients[cl] = struct{}{}
	h.clientsMux.Unlock()

	go h.writeLoop(cl)

	// reads only detect the close; clients do not send anything
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.remove(cl)
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	defer cl.ws.Close()
	for data := range cl.send {
		cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(cl)
			return
		}
	}
	cl.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
