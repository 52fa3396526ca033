package service

import (
	"encoding/json"
	"log"
	"sync"

	"chatbot-backend/internal/model"

	"github.com/google/uuid"
)

const sendBufferSize = 256

// Client is one live socket connection. Its identity is owned by the
// Registry and must be read through Registry.Resolve.
type Client struct {
	ID   string
	Send chan []byte

	identity model.Identity
}

func NewClient(identity model.Identity) *Client {
	return &Client{
		identity: identity,
		Send:     make(chan []byte, sendBufferSize),
	}
}

// Registry maps live connections to identities.
//
// Lock discipline: mu guards clients, byIdentity and every Client.identity.
// It is never held while marshalling payloads or calling out of the package;
// channel sends under the read lock are non-blocking.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	byIdentity map[string]map[string]*Client
	closed     bool
}

func NewRegistry() *Registry {
	return &Registry{
		clients:    make(map[string]*Client),
		byIdentity: make(map[string]map[string]*Client),
	}
}

// Connect registers the client and returns its connection id.
func (r *Registry) Connect(client *Client) string {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(client.Send)
		log.Printf("[WS] rejected %s, registry is shut down", client.ID)
		return client.ID
	}
	r.clients[client.ID] = client
	conns, ok := r.byIdentity[client.identity.ID]
	if !ok {
		conns = make(map[string]*Client)
		r.byIdentity[client.identity.ID] = conns
	}
	conns[client.ID] = client
	identity := client.identity
	total := len(r.clients)
	r.mu.Unlock()

	log.Printf("[WS] %s (%s) connected as %s (total: %d)", identity.DisplayName, identity.Role, client.ID, total)
	return client.ID
}

// Disconnect removes the connection and closes its send channel. It returns
// the identity the connection belonged to and how many connections that
// identity still has.
func (r *Registry) Disconnect(connID string) (model.Identity, int, bool) {
	r.mu.Lock()
	client, ok := r.clients[connID]
	if !ok {
		r.mu.Unlock()
		return model.Identity{}, 0, false
	}
	delete(r.clients, connID)
	identity := client.identity
	remaining := 0
	if conns, ok := r.byIdentity[identity.ID]; ok {
		delete(conns, connID)
		remaining = len(conns)
		if remaining == 0 {
			delete(r.byIdentity, identity.ID)
		}
	}
	close(client.Send)
	total := len(r.clients)
	r.mu.Unlock()

	log.Printf("[WS] %s disconnected from %s (total: %d)", identity.DisplayName, connID, total)
	return identity, remaining, true
}

func (r *Registry) Resolve(connID string) (model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[connID]
	if !ok {
		return model.Identity{}, ErrConnectionNotFound
	}
	return client.identity, nil
}

func (r *Registry) AllConnectionsFor(identityID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byIdentity[identityID]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) AnyConnectionFor(identityID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byIdentity[identityID] {
		return c
	}
	return nil
}

func (r *Registry) IsOnline(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identityID]) > 0
}

// OnlineIdentities lists connected identities, one entry per identity.
// An empty businessID lists every business.
func (r *Registry) OnlineIdentities(businessID string) []model.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Identity, 0, len(r.byIdentity))
	for _, conns := range r.byIdentity {
		for _, c := range conns {
			if businessID == "" || c.identity.BusinessID == businessID {
				out = append(out, c.identity)
			}
			break
		}
	}
	return out
}

// SetRole updates the role on every live connection of identityID and
// returns how many connections were touched.
func (r *Registry) SetRole(identityID string, role model.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.byIdentity[identityID]
	for _, c := range conns {
		c.identity.Role = role
	}
	return len(conns)
}

// EmitTo sends an event to every live connection of identityID and returns
// the number of connections that accepted it. Zero is not an error.
func (r *Registry) EmitTo(identityID, event string, payload any) int {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("[WS] encode %s failed: %v", event, err)
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for _, c := range r.byIdentity[identityID] {
		if trySend(c, data) {
			sent++
		}
	}
	return sent
}

// Emit sends an event to a single connection.
func (r *Registry) Emit(connID, event string, payload any) bool {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("[WS] encode %s failed: %v", event, err)
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	if !ok {
		return false
	}
	return trySend(c, data)
}

// Broadcast sends an event to every connection.
func (r *Registry) Broadcast(event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("[WS] encode %s failed: %v", event, err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		trySend(c, data)
	}
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Shutdown closes every connection's send channel. Writers exit once drained.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, c := range r.clients {
		close(c.Send)
		delete(r.clients, id)
	}
	r.byIdentity = make(map[string]map[string]*Client)
}

func trySend(c *Client, data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		log.Printf("[WS] send buffer full for %s, dropping frame", c.ID)
		return false
	}
}

func encodeEvent(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(model.WSEvent{Type: event, Data: raw})
}
