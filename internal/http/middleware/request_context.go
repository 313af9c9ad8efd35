package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/workhub/escrow-backend/internal/pkg/ctxutil"
)

// AttachRequestContext seeds every request with a request id. The auth
// middleware fills in the caller identity later, keeping the id.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{RequestID: requestID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
