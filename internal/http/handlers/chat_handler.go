// Chat HTTP handlers.
//
// This file exposes the chat endpoints of the legacy path-style surface:
//   - GET /createchat?name={n}&user={u}...        (create)
//   - GET /getchat/chatname/{chat}                 (history, ETag + ?tail)
//   - GET /chatmembers/chatname/{chat}             (member usernames)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-queue/internal/domain"
	"github.com/tbourn/go-chat-queue/internal/repo"
	"github.com/tbourn/go-chat-queue/internal/services"
	"github.com/tbourn/go-chat-queue/internal/utils"
)

//
// Service contracts (context-aware)
//

// AccountService defines account operations consumed by HTTP handlers.
type AccountService interface {
	// Create registers username with a hashed password.
	Create(ctx context.Context, username, password string) (*domain.User, error)
	// Authenticate reports whether password matches username's credential.
	Authenticate(ctx context.Context, username, password string) (bool, error)
	// Exists reports whether username is registered.
	Exists(ctx context.Context, username string) (bool, error)
}

// ChatService defines chat lifecycle and history reads.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// Create inserts a chat with the listed members atomically.
	Create(ctx context.Context, name string, usernames []string) (*domain.Chat, error)
	// Members lists the usernames of a chat's members.
	Members(ctx context.Context, name string) ([]string, error)
	// History returns the delivered messages of a chat; tail > 0 keeps the
	// last tail items.
	History(ctx context.Context, name string, tail int) (*services.History, error)
}

// MessageService defines message ingestion.
type MessageService interface {
	// Submit durably enqueues a message; it does not wait for delivery.
	Submit(ctx context.Context, chatName, username, content, idemKey string) (*services.Receipt, error)
}

// QueueService reports queue depth.
type QueueService interface {
	Stats(ctx context.Context) (repo.QueueCounts, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for accounts, chats, messages and the
// operational probes. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	accSvc   AccountService
	chatSvc  ChatService
	msgSvc   MessageService
	queueSvc QueueService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(accSvc AccountService, chatSvc ChatService, msgSvc MessageService, queueSvc QueueService) *Handlers {
	return &Handlers{accSvc: accSvc, chatSvc: chatSvc, msgSvc: msgSvc, queueSvc: queueSvc}
}

// maxTail caps ?tail.
const maxTail = 10000

//
// Handlers
//

// CreateChat godoc
// @ID          createChat
// @Summary     Create a chat
// @Description Creates a chat with the listed members in one transaction. An unknown member fails the whole creation.
// @Tags        Chats
// @Produce     json
//
// @Param       name  query  string    true  "Chat name"  example(general)
// @Param       user  query  []string  true  "Member usernames (repeatable)"  collectionFormat(multi)
//
// @Success     201  {object}  handlers.OkResult   "{\"Ok\": null}"
// @Failure     400  {object}  handlers.ErrResult  "Bad request"
// @Failure     404  {object}  handlers.ErrResult  "Unknown member"
// @Failure     409  {object}  handlers.ErrResult  "Chat name taken"
// @Failure     503  {object}  handlers.ErrResult  "Storage busy, retry"
// @Router      /createchat [get]
func (h *Handlers) CreateChat(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		failLegacy(c, fmt.Errorf("name query parameter required: %w", services.ErrInvalid))
		return
	}
	if _, err := h.chatSvc.Create(c.Request.Context(), name, c.QueryArray("user")); err != nil {
		failLegacy(c, err)
		return
	}
	okLegacy(c, http.StatusCreated, nil)
}

// GetChat godoc
// @ID          getChat
// @Summary     Read chat history
// @Description Returns the delivered messages of a chat in delivery order. Supports a weak ETag via If-None-Match and may return 304.
// @Description A chat that exists but has no history yet answers 204.
// @Tags        Chats
// @Produce     json
//
// @Param       chat           path    string  true   "Chat name"  example(general)
// @Param       tail           query   int     false  "Return only the last N items"  minimum(1)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {array}   domain.HistoryItem
// @Header      200  {string}  ETag  "Weak ETag of the history version"
// @Success     204  {string}  string "No history yet"
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse "Chat not found"
// @Failure     503  {object}  handlers.ErrorResponse "Storage busy, retry"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /getchat/chatname/{chat} [get]
func (h *Handlers) GetChat(c *gin.Context) {
	tail := utils.ClampInt(utils.AtoiDefault(c.Query("tail"), 0), 0, maxTail)

	hist, err := h.chatSvc.History(c.Request.Context(), c.Param("chat"), tail)
	if errors.Is(err, services.ErrNoHistory) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		failErr(c, err)
		return
	}

	etag := fmt.Sprintf(`W/"chat-%d-v%d-t%d"`, hist.ChatID, hist.Version, tail)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	items := hist.Items
	if items == nil {
		items = []domain.HistoryItem{}
	}
	ok(c, http.StatusOK, items)
}

// ChatMembers godoc
// @ID          chatMembers
// @Summary     List chat members
// @Tags        Chats
// @Produce     json
// @Param       chat  path  string  true  "Chat name"  example(general)
// @Success     200  {array}   string
// @Failure     404  {object}  handlers.ErrorResponse "Chat not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /chatmembers/chatname/{chat} [get]
func (h *Handlers) ChatMembers(c *gin.Context) {
	names, err := h.chatSvc.Members(c.Request.Context(), c.Param("chat"))
	if err != nil {
		failErr(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	ok(c, http.StatusOK, names)
}
