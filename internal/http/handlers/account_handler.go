// Account HTTP handlers.
//
//   - GET /Authenticate/username/{u}/password/{p}
//   - GET /createaccount/username/{u}/password/{p}
//   - GET /checkuser/username/{u}
//
// The password travels in the path for compatibility with existing clients;
// the access log redacts it and the router marks these responses no-store.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-queue/internal/services"
)

// Authenticate godoc
// @ID          authenticate
// @Summary     Check credentials
// @Tags        Accounts
// @Produce     json
// @Param       username  path  string  true  "Username"  example(alice)
// @Param       password  path  string  true  "Password"
// @Success     200  {object}  handlers.OkResult  "\"1\" on success, \"0\" otherwise"
// @Failure     503  {object}  handlers.ErrResult "Storage busy, retry"
// @Failure     500  {object}  handlers.ErrResult "Internal error"
// @Router      /Authenticate/username/{username}/password/{password} [get]
func (h *Handlers) Authenticate(c *gin.Context) {
	valid, err := h.accSvc.Authenticate(c.Request.Context(), c.Param("username"), c.Param("password"))
	if err != nil {
		failLegacy(c, err)
		return
	}
	okLegacy(c, http.StatusOK, legacyBool(valid))
}

// CreateAccount godoc
// @ID          createAccount
// @Summary     Register a user
// @Tags        Accounts
// @Produce     json
// @Param       username  path  string  true  "Username"  example(alice)
// @Param       password  path  string  true  "Password"
// @Success     201  {object}  handlers.OkResult   "\"1\""
// @Failure     400  {object}  handlers.ErrResult  "Bad username or password"
// @Failure     409  {object}  handlers.ErrResult  "\"0\": username taken"
// @Failure     503  {object}  handlers.ErrResult  "Storage busy, retry"
// @Router      /createaccount/username/{username}/password/{password} [get]
func (h *Handlers) CreateAccount(c *gin.Context) {
	_, err := h.accSvc.Create(c.Request.Context(), c.Param("username"), c.Param("password"))
	if errors.Is(err, services.ErrUsernameTaken) {
		c.AbortWithStatusJSON(http.StatusConflict, ErrResult{Err: legacyFalse})
		return
	}
	if err != nil {
		failLegacy(c, err)
		return
	}
	okLegacy(c, http.StatusCreated, legacyTrue)
}

// CheckUser godoc
// @ID          checkUser
// @Summary     Check whether a username is registered
// @Tags        Accounts
// @Produce     json
// @Param       username  path  string  true  "Username"  example(alice)
// @Success     200  {object}  handlers.OkResult  "\"1\" if registered, \"0\" otherwise"
// @Failure     503  {object}  handlers.ErrResult "Storage busy, retry"
// @Router      /checkuser/username/{username} [get]
func (h *Handlers) CheckUser(c *gin.Context) {
	exists, err := h.accSvc.Exists(c.Request.Context(), c.Param("username"))
	if err != nil {
		failLegacy(c, err)
		return
	}
	okLegacy(c, http.StatusOK, legacyBool(exists))
}
