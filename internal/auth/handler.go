package auth

import (
	"strings"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/internal/common/middleware"
	"github.com/gin-gonic/gin"
)

const (
	// SessionKey is the gin context key holding the authenticated *Session
	SessionKey = "wallet_session"

	bearerPrefix = "Bearer "
)

// Handler handles HTTP requests for wallet sign-in operations
type Handler struct {
	service *Service
}

// NewHandler creates a new auth handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers wallet sign-in routes on the router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	wallet := rg.Group("/wallet")
	{
		wallet.POST("/new-nonce", h.NewNonce)
		wallet.POST("/sign-in", h.SignIn)
		wallet.POST("/logout", h.Logout)
		wallet.GET("/me", h.RequireSession(), h.Me)
	}
}

// extractBearerToken extracts the token from the Authorization header
func extractBearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errors.Unauthorized("Missing bearer token")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return "", errors.Unauthorized("Missing bearer token")
	}
	return raw, nil
}

// RequireSession authenticates the bearer token and stores the session in the context
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := extractBearerToken(c)
		if err != nil {
			middleware.RespondError(c, err)
			c.Abort()
			return
		}

		session, err := h.service.Authenticate(c.Request.Context(), raw)
		if err != nil {
			middleware.RespondError(c, err)
			c.Abort()
			return
		}

		c.Set(SessionKey, session)
		c.Set(middleware.WalletAddressKey, session.Address)
		c.Next()
	}
}

// NewNonce godoc
// @Summary Issue login nonce
// @Description Issue a one-time nonce the wallet must sign to log in
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body NewNonceRequest true "Wallet address"
// @Success 200 {object} middleware.SuccessResponse{data=NewNonceResponse} "Nonce"
// @Failure 400 {object} middleware.ErrorResponse "Invalid input"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /api/wallet/new-nonce [post]
func (h *Handler) NewNonce(c *gin.Context) {
	var req NewNonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, errors.InvalidInput(err.Error()))
		return
	}

	result, err := h.service.IssueNonce(c.Request.Context(), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	middleware.RespondOK(c, result)
}

// SignIn godoc
// @Summary Sign in with wallet
// @Description Exchange a signed login message for a session token
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body SignInRequest true "Address and signature"
// @Success 200 {object} middleware.SuccessResponse{data=SignInResponse} "Session token"
// @Failure 400 {object} middleware.ErrorResponse "Invalid input or no pending nonce"
// @Failure 401 {object} middleware.ErrorResponse "Signature verification failed"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /api/wallet/sign-in [post]
func (h *Handler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, errors.InvalidInput(err.Error()))
		return
	}

	issued, err := h.service.SignIn(c.Request.Context(), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	middleware.RespondOK(c, SignInResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	})
}

// Logout godoc
// @Summary Log out
// @Description Revoke the session behind the bearer token
// @Tags wallet
// @Security BearerAuth
// @Success 204 "Logged out"
// @Failure 401 {object} middleware.ErrorResponse "Invalid token"
// @Failure 500 {object} middleware.ErrorResponse "Internal server error"
// @Router /api/wallet/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	raw, err := extractBearerToken(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	if err := h.service.Logout(c.Request.Context(), raw); err != nil {
		middleware.RespondError(c, err)
		return
	}

	middleware.RespondNoContent(c)
}

// Me godoc
// @Summary Current session
// @Description Describe the session behind the bearer token
// @Tags wallet
// @Security BearerAuth
// @Produce json
// @Success 200 {object} middleware.SuccessResponse{data=MeResponse} "Session"
// @Failure 401 {object} middleware.ErrorResponse "Invalid, expired or revoked token"
// @Router /api/wallet/me [get]
func (h *Handler) Me(c *gin.Context) {
	value, _ := c.Get(SessionKey)
	session, ok := value.(*Session)
	if !ok {
		middleware.RespondError(c, errors.Unauthorized("Missing session"))
		return
	}

	middleware.RespondOK(c, ToMeResponse(session))
}
