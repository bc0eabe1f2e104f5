// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on message posts and marks
// requests that replay an earlier submission so the rate limiter lets them
// through. Serving the replay itself is the handler's job.
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from an
// earlier submission.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, _ := c.Get(ctxKeyIdemKey)
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a live earlier submission.
func IsReplay(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyIdemReplay)
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// ChatParam and UserParam name the route parameters identifying the
	// submission scope. Defaults: "chat" and "user".
	ChatParam, UserParam string
}

// IdempotencyLookup reports whether (chat, user, key) is bound to a live
// earlier submission. Lookup errors never block the request.
type IdempotencyLookup func(ctx context.Context, chat, user, key string) (bool, error)

// IdempotencyValidator validates and stashes the Idempotency-Key header.
// An absent header is a no-op; a malformed one is rejected with 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	chatParam, userParam := opts.ChatParam, opts.UserParam
	if chatParam == "" {
		chatParam = "chat"
	}
	if userParam == "" {
		userParam = "user"
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": GetRequestID(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			ok, err := lookup(c.Request.Context(), c.Param(chatParam), c.Param(userParam), key)
			if err != nil {
				LoggerFrom(c).Debug().Err(err).Msg("idempotency lookup")
			}
			if ok {
				c.Set(ctxKeyIdemReplay, true)
			}
		}
		c.Next()
	}
}
