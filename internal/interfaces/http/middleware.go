package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
)

const (
	// HeaderUserID carries the acting user's id, set by the authenticating gateway
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"

	actorKey     = "actor"
	requestIDKey = "request_id"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// authenticate resolves X-User-ID to a user of the directory
func (h *Handlers) authenticate(c *gin.Context) {
	raw := c.GetHeader(HeaderUserID)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		abort(c, http.StatusUnauthorized, "missing or invalid "+HeaderUserID+" header")
		return
	}

	user, err := h.services.Directory.FindUser(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			abort(c, http.StatusUnauthorized, "unknown user")
			return
		}
		h.fail(c, err)
		c.Abort()
		return
	}

	c.Set(actorKey, user)
	c.Next()
}

func requireCapability(capability role.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actor(c).Can(capability) {
			abort(c, http.StatusForbidden, "insufficient permissions")
			return
		}
		c.Next()
	}
}

func actor(c *gin.Context) *entity.User {
	v, _ := c.Get(actorKey)
	return actorFrom(v)
}

func actorFrom(v interface{}) *entity.User {
	user, _ := v.(*entity.User)
	if user == nil {
		return &entity.User{}
	}
	return user
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: msg})
}
