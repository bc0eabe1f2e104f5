// Message HTTP handlers.
//
// This file exposes the ingestion endpoint:
//   - POST /newmessage/chatname/{chat}/username/{user}
//
// The handler only enqueues: a 202 means the message and its queue entry are
// committed, not that the message is visible in the chat history yet.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a live record exists
// for (user, chat, key), the original receipt is returned, nothing new is
// enqueued, and `Idempotency-Replayed: true` is set.
package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-queue/internal/http/middleware"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for posting a message.
//
// Line endings and blank-line runs are normalized by the handler; the
// service trims and enforces the configured rune limit.
type PostMessageRequest struct {
	Content string `json:"content" example:"hi"`
}

// Response headers identifying the enqueued rows.
const (
	HeaderMessageID    = "X-Message-ID"
	HeaderQueueEntryID = "X-Queue-Entry-ID"
)

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF and collapses runs of 3+ LFs to
// exactly two. Surrounding whitespace is left to the service.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return nlCollapseRE.ReplaceAllString(s, "\n\n")
}

// NewMessage godoc
// @ID          newMessage
// @Summary     Post a message
// @Description Durably records the message and enqueues it for delivery. The message appears in the history once the delivery worker has processed it.
// @Description Supports idempotency via the Idempotency-Key header (same key → same receipt).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       chat             path    string  true  "Chat name"    example(general)
// @Param       user             path    string  true  "Sender name"  example(alice)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     202  {object}  handlers.OkResult   "{\"Ok\": null}"
// @Header      202  {string}  X-Message-ID          "Stored message id"
// @Header      202  {string}  X-Queue-Entry-ID      "Queue entry id"
// @Header      202  {string}  Idempotency-Replayed  "true when the key matched an earlier post"
// @Failure     400  {object}  handlers.ErrResult  "Bad request"
// @Failure     404  {object}  handlers.ErrResult  "Chat or user not found"
// @Failure     429  {object}  handlers.ErrorResponse "Rate limited"
// @Failure     503  {object}  handlers.ErrResult  "Storage busy, retry"
// @Failure     500  {object}  handlers.ErrResult  "Internal error"
// @Router      /newmessage/chatname/{chat}/username/{user} [post]
func (h *Handlers) NewMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrResult{
			Err: newError(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body"),
		})
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	rcpt, err := h.msgSvc.Submit(c.Request.Context(), c.Param("chat"), c.Param("user"), sanitizeContent(req.Content), key)
	if err != nil {
		failLegacy(c, err)
		return
	}

	c.Header(HeaderMessageID, strconv.FormatUint(uint64(rcpt.MessageID), 10))
	c.Header(HeaderQueueEntryID, strconv.FormatUint(uint64(rcpt.QueueEntryID), 10))
	if rcpt.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	okLegacy(c, http.StatusAccepted, nil)
}
