package ws

import (
	"encoding/json"
	"log/slog"
)

// sendQueueSize bounds how far a client may fall behind before it is
// dropped. A full queue means the peer has stopped reading.
const sendQueueSize = 256

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Envelope frames every server-to-client message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MarshalEnvelope renders a typed payload for the wire.
func MarshalEnvelope(eventType string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: eventType, Data: data})
}

// SendEnvelope delivers a typed message to a single subscriber, outside the
// broadcast path. Used for the connect handshake and error notifications.
func SendEnvelope(client Subscriber, eventType string, data any) error {
	payload, err := MarshalEnvelope(eventType, data)
	if err != nil {
		return err
	}
	return client.Send(payload)
}

// Hub tracks connected dashboard clients and fans state updates out to all
// of them. Each client is drained by its own writer goroutine behind a
// bounded queue, so a slow or hung client never blocks the hub loop, the
// publisher, or any other client's delivery. A client that fails a write or
// fills its queue is dropped; everyone else still receives the message.
type Hub struct {
	clients   map[string]*clientHandle
	register  chan registration
	unreg     chan string
	failed    chan string
	broadcast chan []byte
	evict     func(connID string)
	log       *slog.Logger
}

// registration couples a connection ID with its subscriber.
type registration struct {
	connID string
	client Subscriber
}

// clientHandle is the hub loop's view of one client: the queue it enqueues
// into, drained by that client's writer goroutine.
type clientHandle struct {
	connID string
	sub    Subscriber
	queue  chan []byte
}

// NewHub creates an initialized Hub. evict is invoked with the connection ID
// of any client removed because delivery to it failed or it stopped reading;
// wiring points it at the log-session registry so dead connections drop
// their streams.
func NewHub(logger *slog.Logger, evict func(connID string)) *Hub {
	if evict == nil {
		evict = func(string) {}
	}
	h := &Hub{
		clients:   make(map[string]*clientHandle),
		register:  make(chan registration),
		unreg:     make(chan string),
		failed:    make(chan string),
		broadcast: make(chan []byte),
		evict:     evict,
		log:       logger,
	}
	go h.run()
	return h
}

// run is the hub loop. Every branch is non-blocking with respect to client
// transports: enqueues use select/default and teardown is delegated to the
// writer goroutines.
func (h *Hub) run() {
	for {
		select {
		case reg := <-h.register:
			handle := &clientHandle{
				connID: reg.connID,
				sub:    reg.client,
				queue:  make(chan []byte, sendQueueSize),
			}
			h.clients[reg.connID] = handle
			go h.writer(handle)
		case connID := <-h.unreg:
			h.drop(connID, false)
		case connID := <-h.failed:
			h.drop(connID, true)
		case payload := <-h.broadcast:
			for connID, handle := range h.clients {
				select {
				case handle.queue <- payload:
				default:
					h.log.Warn("dropping client with full send queue", "conn_id", connID)
					h.drop(connID, true)
				}
			}
		}
	}
}

// writer drains one client's queue. A failed write reports the client back
// to the hub loop and discards the rest of its queue.
func (h *Hub) writer(handle *clientHandle) {
	defer handle.sub.Close()
	for payload := range handle.queue {
		if err := handle.sub.Send(payload); err != nil {
			h.log.Warn("dropping client after failed delivery", "conn_id", handle.connID, "error", err)
			h.failed <- handle.connID
			for range handle.queue {
			}
			return
		}
	}
}

// drop removes a client from the broadcast set. Closing the queue ends its
// writer, which closes the transport; eviction runs off the hub loop because
// it may wait on session teardown.
func (h *Hub) drop(connID string, evict bool) {
	handle, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	close(handle.queue)
	if evict {
		go h.evict(connID)
	}
}

// Register adds a connected client to the broadcast set.
func (h *Hub) Register(connID string, client Subscriber) {
	h.register <- registration{connID: connID, client: client}
}

// Unregister removes a client and closes its transport.
func (h *Hub) Unregister(connID string) {
	h.unreg <- connID
}

// Broadcast sends payload to every connected client, best effort per client.
func (h *Hub) Broadcast(payload []byte) {
	h.broadcast <- payload
}

// PublishState broadcasts one container update.
func (h *Hub) PublishState(view any) {
	payload, err := MarshalEnvelope("container_state_changed", view)
	if err != nil {
		h.log.Warn("failed to marshal state payload", "error", err)
		return
	}
	h.Broadcast(payload)
}
