package service

import (
	"context"
	"log"

	"chatbot-backend/internal/model"
)

// DisconnectCleaner is notified when an identity's last connection goes away.
type DisconnectCleaner interface {
	CleanupOnDisconnect(ctx context.Context, identityID string) error
}

// Presence announces connects and disconnects to every connection.
type Presence struct {
	registry *Registry
	cleaner  DisconnectCleaner
}

func NewPresence(registry *Registry, cleaner DisconnectCleaner) *Presence {
	return &Presence{registry: registry, cleaner: cleaner}
}

// Connect registers the client and broadcasts user-connection.
func (p *Presence) Connect(client *Client) string {
	id := p.registry.Connect(client)
	identity, err := p.registry.Resolve(id)
	if err != nil {
		return id
	}
	p.registry.Broadcast(model.EventUserConnection, model.PresenceUpdate{
		Identity: identity,
		Online:   p.registry.OnlineIdentities(identity.BusinessID),
	})
	return id
}

// Disconnect removes the connection, broadcasts user-disconnection and, when
// it was the identity's last connection, drops the hand-off requests the
// identity still has pending. Cleanup failures are logged only.
func (p *Presence) Disconnect(ctx context.Context, connID string) {
	identity, remaining, ok := p.registry.Disconnect(connID)
	if !ok {
		return
	}
	p.registry.Broadcast(model.EventUserDisconnection, model.PresenceUpdate{
		Identity: identity,
		Online:   p.registry.OnlineIdentities(identity.BusinessID),
	})

	if remaining > 0 || p.cleaner == nil {
		return
	}
	if err := p.cleaner.CleanupOnDisconnect(ctx, identity.ID); err != nil {
		log.Printf("[Presence] cleanup for %s failed: %v", identity.ID, err)
	}
}
