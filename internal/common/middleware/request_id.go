package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name for request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the context key for request ID
	RequestIDKey = "request_id"
	// WalletAddressKey is the context key for the authenticated wallet address
	WalletAddressKey = "wallet_address"

	maxRequestIDLength = 64
)

// RequestID middleware generates or extracts request ID for each request.
// A client supplied X-Request-ID is reused so the terminal client can
// correlate its log file with server logs; oversized values are replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}

		// Set in context for handlers/services to use
		c.Set(RequestIDKey, requestID)
		// Set in response header for client correlation
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID extracts request ID from gin context
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
