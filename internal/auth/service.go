package auth

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/pkg/nonce"
	"github.com/ahwlsqja/walletlogin/pkg/sigverify"
	"github.com/ahwlsqja/walletlogin/pkg/token"
	"go.uber.org/zap"
)

// Service handles wallet sign-in business logic
type Service struct {
	nonces    nonce.Store
	verifier  sigverify.Verifier
	tokens    *token.Manager
	sessions  SessionRepository
	statement string
	logger    *zap.Logger

	now func() time.Time
}

// NewService creates a new auth service. statement is the text that
// precedes the nonce in the message wallets sign.
func NewService(
	nonces nonce.Store,
	verifier sigverify.Verifier,
	tokens *token.Manager,
	sessions SessionRepository,
	statement string,
	logger *zap.Logger,
) *Service {
	return &Service{
		nonces:    nonces,
		verifier:  verifier,
		tokens:    tokens,
		sessions:  sessions,
		statement: statement,
		logger:    logger,
		now:       time.Now,
	}
}

// IssueNonce creates the one-time nonce for a wallet address
func (s *Service) IssueNonce(ctx context.Context, req *NewNonceRequest) (*NewNonceResponse, error) {
	// 1. Validate address format
	if err := validateAddress(req.WalletAddress); err != nil {
		return nil, err
	}

	// 2. Issue nonce (replaces any outstanding one)
	value, err := s.nonces.Issue(ctx, req.WalletAddress)
	if err != nil {
		return nil, errors.RedisError(err)
	}

	return &NewNonceResponse{Nonce: value}, nil
}

// SignIn verifies the signed login message and issues a session token
func (s *Service) SignIn(ctx context.Context, req *SignInRequest) (*token.Issued, error) {
	// 1. Validate address format
	if err := validateAddress(req.WalletAddress); err != nil {
		return nil, err
	}
	address := strings.ToLower(req.WalletAddress)

	// 2. Parse signature
	signature, err := sigverify.ParseSignature(req.SignedMessage)
	if err != nil {
		return nil, errors.InvalidInput("Invalid signature format")
	}

	// 3. Consume nonce (single use, even if verification fails)
	value, err := s.nonces.Take(ctx, address)
	if err != nil {
		if stderrors.Is(err, nonce.ErrNonceNotFound) {
			return nil, errors.NonceNotFound()
		}
		return nil, errors.RedisError(err)
	}

	// 4. Verify signature over statement + nonce
	message := sigverify.LoginMessage(s.statement, value)
	ok, err := s.verifier.VerifyPersonalSign(address, message, signature)
	if err != nil || !ok {
		s.logger.Warn("wallet sign-in verification failed",
			zap.String("address", address),
			zap.Error(err),
		)
		// 외부 메시지는 고정, 상세는 로그로만
		return nil, errors.InvalidSignature()
	}

	// 5. Issue token and record session
	issued, err := s.tokens.Issue(address)
	if err != nil {
		s.logger.Error("failed to issue session token", zap.Error(err))
		return nil, errors.Internal("Failed to issue session token")
	}

	if err := s.sessions.Create(ctx, &Session{
		ID:        issued.SessionID,
		Address:   issued.Address,
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
	}); err != nil {
		s.logger.Error("failed to record session", zap.Error(err))
		return nil, errors.DBError(err)
	}

	s.logger.Info("wallet signed in",
		zap.String("address", address),
		zap.String("session_id", issued.SessionID),
	)

	return issued, nil
}

// Authenticate resolves a raw token to its live session
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*Session, error) {
	claims, err := s.tokens.Parse(rawToken)
	if err != nil {
		return nil, errors.Unauthorized("Invalid session token")
	}

	session, err := s.sessions.Get(ctx, claims.ID)
	if err != nil {
		if stderrors.Is(err, ErrSessionNotFound) {
			return nil, errors.Unauthorized("Unknown session")
		}
		s.logger.Error("failed to load session", zap.Error(err))
		return nil, errors.DBError(err)
	}

	if session.Revoked() {
		return nil, errors.Unauthorized("Session has been logged out")
	}
	return session, nil
}

// Logout revokes the session behind rawToken
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.tokens.Parse(rawToken)
	if err != nil {
		return errors.Unauthorized("Invalid session token")
	}

	if err := s.sessions.Revoke(ctx, claims.ID, s.now().UTC()); err != nil {
		if stderrors.Is(err, ErrSessionNotFound) {
			return errors.Unauthorized("Unknown session")
		}
		s.logger.Error("failed to revoke session", zap.Error(err))
		return errors.DBError(err)
	}

	s.logger.Info("wallet logged out",
		zap.String("address", claims.Subject),
		zap.String("session_id", claims.ID),
	)
	return nil
}

// ============================================================================
// Helper functions
// ============================================================================

// validateAddress maps address validation failures to InvalidInput
func validateAddress(address string) error {
	switch err := sigverify.ValidateAddress(address); {
	case err == nil:
		return nil
	case stderrors.Is(err, sigverify.ErrInvalidChecksum):
		return errors.InvalidInput("Invalid address checksum")
	default:
		return errors.InvalidInput("Invalid Ethereum address format")
	}
}
