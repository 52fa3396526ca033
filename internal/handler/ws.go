package handler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"chatbot-backend/internal/middleware"
	"chatbot-backend/internal/model"
	"chatbot-backend/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// IdentityStore records connecting identities so staff rosters and display
// names survive disconnects.
type IdentityStore interface {
	Upsert(ctx context.Context, identity model.Identity) error
	Get(ctx context.Context, id string) (*model.Identity, error)
}

type WSOptions struct {
	CookieName  string
	ReadTimeout time.Duration
	RatePerSec  float64
	RateBurst   int
}

type WSHandler struct {
	registry   *service.Registry
	presence   *service.Presence
	router     *service.Router
	bot        *service.BotEngine
	dispatcher *service.Dispatcher
	auth       middleware.IdentityResolver
	identities IdentityStore
	opts       WSOptions
}

func NewWSHandler(
	registry *service.Registry,
	presence *service.Presence,
	router *service.Router,
	bot *service.BotEngine,
	dispatcher *service.Dispatcher,
	auth middleware.IdentityResolver,
	identities IdentityStore,
	opts WSOptions,
) *WSHandler {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	return &WSHandler{
		registry:   registry,
		presence:   presence,
		router:     router,
		bot:        bot,
		dispatcher: dispatcher,
		auth:       auth,
		identities: identities,
		opts:       opts,
	}
}

func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := middleware.TokenFrom(c, h.opts.CookieName)
	if token == "" {
		return c.Status(401).JSON(fiber.Map{"error": "token required"})
	}
	identity, err := h.auth.ResolveIdentity(token)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
	}

	c.Locals("identity", h.recordIdentity(c.Context(), identity))
	return websocket.New(h.handleConnection)(c)
}

// recordIdentity stores the identity on first sight. A role already on
// record wins over the token's, so operator role changes stick.
func (h *WSHandler) recordIdentity(ctx context.Context, identity model.Identity) model.Identity {
	if h.identities == nil {
		return identity
	}
	if err := h.identities.Upsert(ctx, identity); err != nil {
		log.Printf("[WS] record identity %s failed: %v", identity.ID, err)
		return identity
	}
	if stored, err := h.identities.Get(ctx, identity.ID); err == nil && stored.Role.Valid() && stored.Role != model.RoleBot {
		identity.Role = stored.Role
	}
	return identity
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	identity, _ := c.Locals("identity").(model.Identity)

	client := service.NewClient(identity)
	connID := h.presence.Connect(client)
	defer h.presence.Disconnect(context.Background(), connID)

	go func() {
		defer c.Close()
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(h.opts.RatePerSec), h.opts.RateBurst)

	_ = c.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			break
		}
		_ = c.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))

		var event model.WSEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			h.emitError(connID, "", "malformed event")
			continue
		}
		if h.opts.RatePerSec > 0 && event.Type != model.EventPing && !limiter.Allow() {
			h.emitError(connID, event.Type, "rate limit exceeded")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		h.dispatch(ctx, connID, event)
		cancel()
	}
}

// dispatch runs one inbound event. Failures are reported to the sending
// connection only.
func (h *WSHandler) dispatch(ctx context.Context, connID string, event model.WSEvent) {
	switch event.Type {
	case model.EventPing:
		h.registry.Emit(connID, model.EventPong, nil)

	case model.EventConversationMessage:
		var in model.InboundMessage
		if err := json.Unmarshal(event.Data, &in); err != nil {
			h.emitError(connID, event.Type, "invalid payload")
			return
		}
		if _, err := h.router.Route(ctx, connID, in); err != nil {
			h.fail(connID, event.Type, err)
		}

	case model.EventBotSendGreeting:
		var req model.GreetingRequest
		if err := json.Unmarshal(event.Data, &req); err != nil {
			h.emitError(connID, event.Type, "invalid payload")
			return
		}
		identity, err := h.registry.Resolve(connID)
		if err != nil {
			return
		}
		if err := h.bot.Greet(ctx, req.ConversationID, identity); err != nil {
			h.fail(connID, event.Type, err)
		}

	case model.EventStaffAccept, model.EventStaffDecline:
		var req model.StaffDecision
		if err := json.Unmarshal(event.Data, &req); err != nil {
			h.emitError(connID, event.Type, "invalid payload")
			return
		}
		identity, err := h.registry.Resolve(connID)
		if err != nil {
			return
		}
		if event.Type == model.EventStaffAccept {
			err = h.dispatcher.Accept(ctx, req.NotificationID, identity)
		} else {
			err = h.dispatcher.Decline(ctx, req.NotificationID, identity)
		}
		if err != nil {
			h.fail(connID, event.Type, err)
		}

	default:
		log.Printf("[WS] unknown event type %q from %s", event.Type, connID)
		h.emitError(connID, event.Type, "unknown event")
	}
}

func (h *WSHandler) fail(connID, event string, err error) {
	if statusFor(err) == 500 {
		log.Printf("[WS] %s from %s failed: %v", event, connID, err)
	}
	h.emitError(connID, event, publicError(err))
}

func (h *WSHandler) emitError(connID, event, message string) {
	h.registry.Emit(connID, model.EventError, model.WSError{Event: event, Error: message})
}
