// Package realtime fans websocket broadcasts out to per-user rooms, locally
// and (through the Redis bridge) across horizontally scaled processes.
package realtime

import "log/slog"

const clientBuffer = 64

// Client is one connected socket's outbound mailbox. The transport layer
// drains Outbox; the hub closes it when the client is dropped.
type Client struct {
	Room string
	send chan []byte
}

// NewClient creates a mailbox bound to a room.
func NewClient(room string) *Client {
	return &Client{Room: room, send: make(chan []byte, clientBuffer)}
}

// Outbox returns the channel of payloads queued for this client.
func (c *Client) Outbox() <-chan []byte {
	return c.send
}

type roomMessage struct {
	room    string
	payload []byte
}

type clientMessage struct {
	client  *Client
	payload []byte
}

// Hub routes payloads to every client joined to a room. Room membership is
// the only addressing state: the hub never tracks socket identities beyond
// it. All state is owned by the run loop goroutine.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	local      chan roomMessage
	direct     chan clientMessage
	bridge     *RedisBridge
}

// NewHub starts the routing loop. bridge may be nil, in which case delivery
// is local-process only.
func NewHub(bridge *RedisBridge) *Hub {
	h := &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		local:      make(chan roomMessage, 256),
		direct:     make(chan clientMessage, 256),
	}
	if bridge != nil {
		h.bridge = bridge
		bridge.start(h.deliverLocal)
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			if _, ok := h.rooms[c.Room]; !ok {
				h.rooms[c.Room] = make(map[*Client]bool)
			}
			h.rooms[c.Room][c] = true
		case c := <-h.unregister:
			if members, ok := h.rooms[c.Room]; ok {
				if _, exists := members[c]; exists {
					delete(members, c)
					close(c.send)
				}
				if len(members) == 0 {
					delete(h.rooms, c.Room)
				}
			}
		case m := <-h.local:
			members, ok := h.rooms[m.room]
			if !ok {
				continue
			}
			for c := range members {
				select {
				case c.send <- m.payload:
				default:
					// Slow consumer: drop it rather than block the loop.
					slog.Warn("dropping slow realtime client", "room", m.room)
					close(c.send)
					delete(members, c)
				}
			}
		case m := <-h.direct:
			members, ok := h.rooms[m.client.Room]
			if !ok || !members[m.client] {
				continue
			}
			select {
			case m.client.send <- m.payload:
			default:
				slog.Warn("dropping slow realtime client", "room", m.client.Room)
				close(m.client.send)
				delete(members, m.client)
			}
		}
	}
}

// Register joins the client to its room.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister releases the client's room membership and closes its outbox.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// EmitClient delivers the payload to one client only, without replication.
// Delivery runs on the routing loop so it cannot race the outbox close of an
// unregistering client; payloads for already-dropped clients are discarded.
func (h *Hub) EmitClient(c *Client, payload []byte) {
	h.direct <- clientMessage{client: c, payload: payload}
}

// Emit delivers the payload to the room's local clients and replicates it to
// peer processes when a bridge is attached.
func (h *Hub) Emit(room string, payload []byte) {
	h.deliverLocal(room, payload)
	if h.bridge != nil {
		h.bridge.publish(room, payload)
	}
}

func (h *Hub) deliverLocal(room string, payload []byte) {
	h.local <- roomMessage{room: room, payload: payload}
}
