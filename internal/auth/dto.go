package auth

import (
	"time"
)

// ============================================================================
// Request DTOs
// ============================================================================

// NewNonceRequest represents the request body for nonce issuance
// NOTE: Address 형식 검증은 서비스 레이어에서 sigverify.ValidateAddress()로 수행
type NewNonceRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required,len=42" example:"0x742d35Cc6634C0532925a3b844Bc454e4438f44e"`
}

// SignInRequest represents the request body for wallet sign-in
type SignInRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required,len=42" example:"0x742d35Cc6634C0532925a3b844Bc454e4438f44e"`
	// SignedMessage: 0x prefix + 130 hex chars (65 bytes)
	SignedMessage string `json:"signedMessage" binding:"required,len=132" example:"0x1234...abcd"`
}

// ============================================================================
// Response DTOs
// ============================================================================

// NewNonceResponse carries the nonce the wallet must sign
type NewNonceResponse struct {
	Nonce string `json:"nonce" example:"550e8400-e29b-41d4-a716-446655440000"`
}

// SignInResponse carries the session token
type SignInResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MeResponse describes the session behind a token
type MeResponse struct {
	WalletAddress string    `json:"walletAddress" example:"0x742d35cc6634c0532925a3b844bc454e4438f44e"`
	SessionID     string    `json:"sessionId" example:"550e8400-e29b-41d4-a716-446655440000"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// ============================================================================
// Converters
// ============================================================================

// ToMeResponse converts a Session to MeResponse
func ToMeResponse(s *Session) *MeResponse {
	if s == nil {
		return nil
	}
	return &MeResponse{
		WalletAddress: s.Address,
		SessionID:     s.ID,
		IssuedAt:      s.IssuedAt,
		ExpiresAt:     s.ExpiresAt,
	}
}
