package dashboard

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tgmatch/internal/models"
	"tgmatch/internal/storage"
	"tgmatch/pkg/protocol"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	userKey         = "user"
)

// requestID tags every request with a uuid, keeping a valid inbound one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (h *Handler) measure() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Stats.RecordRequest(time.Since(start))
	}
}

// RequireSession loads the signed-in user from the session cookie or bearer
// token. Banned users are refused.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := h.Session.GetSession(c.Request)
		if err != nil {
			fail(c, http.StatusUnauthorized, protocol.ErrorCodeUnauthorized, "Not signed in")
			return
		}

		user, err := h.Store.UserByID(c.Request.Context(), session.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			fail(c, http.StatusUnauthorized, protocol.ErrorCodeUnauthorized, "Unknown user")
			return
		}
		if err != nil {
			h.storeError(c, err)
			return
		}
		if user.Role == models.RoleBanned {
			fail(c, http.StatusForbidden, protocol.ErrorCodeBanned, "Account is banned")
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// RequireRole lets the request through only if allowed(role) holds for the
// signed-in user. It must run after RequireSession.
func RequireRole(allowed func(models.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !allowed(user.Role) {
			fail(c, http.StatusForbidden, protocol.ErrorCodeForbidden, "Insufficient role")
			return
		}
		c.Next()
	}
}

func isAdmin(r models.Role) bool { return r == models.RoleAdmin }

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
