package server

import (
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/freightpay/internal/actorcontext"
	"github.com/smallbiznis/freightpay/internal/identity"
	invoicedomain "github.com/smallbiznis/freightpay/internal/invoice/domain"
	"go.uber.org/zap"
)

const (
	HeaderUserID        = "X-User-ID"
	HeaderWebhookSecret = "X-Webhook-Secret"
)

// IdentityRequired resolves X-User-ID through the identity lookup and stores
// the actor on the request context.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if uid == "" {
			AbortWithError(c, invoicedomain.ErrMissingActor)
			return
		}

		user, err := s.users.GetUser(c.Request.Context(), uid)
		if err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				AbortWithError(c, invoicedomain.ErrMissingActor)
				return
			}
			AbortWithError(c, err)
			return
		}
		role, ok := user.RoleValue()
		if !ok {
			s.log.Warn("user has unknown role", zap.String("uid", uid), zap.String("role", user.Role))
			AbortWithError(c, invoicedomain.ErrForbidden)
			return
		}

		ctx := actorcontext.WithActor(c.Request.Context(), actorcontext.Actor{
			UID:   user.UID,
			Role:  role,
			Email: user.Email,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize checks the route permission for the actor's role. Party checks on
// individual invoices happen in the service.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorcontext.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, invoicedomain.ErrMissingActor)
			return
		}
		if err := s.authz.Authorize(c.Request.Context(), actor.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// webhookAuth verifies the shared secret when one is configured.
func (s *Server) webhookAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.WebhookSecret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(HeaderWebhookSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
			AbortWithError(c, invoicedomain.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) webhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.webhookLimiter.Enabled() {
			c.Next()
			return
		}
		allowed, retryAfter := s.webhookLimiter.Allow(c.Request.Context(), c.Param("provider"))
		if !allowed {
			if retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			}
			AbortWithError(c, errRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) noRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorResponse{Error: errorPayload{
		Type:    "not_found",
		Message: "route not found",
	}})
}
