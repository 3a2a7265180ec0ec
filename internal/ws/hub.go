package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages stream subscriptions by room name. Registration and
// broadcast are serialized through the run loop, so delivery order
// follows receipt order.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with its room.
type message struct {
	room    string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	room   string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.room]; !ok {
				h.clients[sub.room] = make(map[Subscriber]struct{})
			}
			h.clients[sub.room][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.room]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.room)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.room]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.room)
				}
			}
		}
	}
}

// Register adds a client to a room.
func (h *Hub) Register(room string, client Subscriber) {
	h.register <- subscription{room: room, client: client}
}

// Unregister removes a client from a room.
func (h *Hub) Unregister(room string, client Subscriber) {
	h.unreg <- subscription{room: room, client: client}
}

// Broadcast sends payload to every client in the room.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.broadcast <- message{room: room, payload: payload}
}
