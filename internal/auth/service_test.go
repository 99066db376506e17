package auth_test

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/auth"
	"github.com/ahwlsqja/walletlogin/internal/auth/repofakes"
	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/pkg/nonce"
	"github.com/ahwlsqja/walletlogin/pkg/sigverify"
	"github.com/ahwlsqja/walletlogin/pkg/token"
	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const statement = "Sign in to walletlogin"

type fixture struct {
	service *auth.Service
	repo    *repofakes.FakeSessionRepo
	key     *ecdsa.PrivateKey
	address string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := token.NewManager("test-secret", "walletlogin", time.Hour)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	repo := repofakes.NewFakeSessionRepo()
	svc := auth.NewService(
		nonce.NewRedisStore(client, zap.NewNop()),
		sigverify.NewEthVerifier(zap.NewNop()),
		tokens,
		repo,
		statement,
		zap.NewNop(),
	)

	return &fixture{
		service: svc,
		repo:    repo,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

func (f *fixture) sign(t *testing.T, key *ecdsa.PrivateKey, n string) string {
	t.Helper()
	sig, err := sigverify.SignPersonal(key, sigverify.LoginMessage(statement, n))
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func TestService_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("valid signature issues token", func(t *testing.T) {
		f := newFixture(t)
		n, err := f.service.IssueNonce(ctx, &auth.NewNonceRequest{WalletAddress: f.address})
		require.NoError(t, err)

		issued, err := f.service.SignIn(ctx, &auth.SignInRequest{
			WalletAddress: f.address,
			SignedMessage: f.sign(t, f.key, n.Nonce),
		})
		require.NoError(t, err)
		require.NotEmpty(t, issued.Token)
		require.Equal(t, 1, f.repo.Count())

		session, err := f.service.Authenticate(ctx, issued.Token)
		require.NoError(t, err)
		require.Equal(t, issued.Address, session.Address)
	})

	t.Run("nonce is single use", func(t *testing.T) {
		f := newFixture(t)
		n, err := f.service.IssueNonce(ctx, &auth.NewNonceRequest{WalletAddress: f.address})
		require.NoError(t, err)
		req := &auth.SignInRequest{WalletAddress: f.address, SignedMessage: f.sign(t, f.key, n.Nonce)}

		_, err = f.service.SignIn(ctx, req)
		require.NoError(t, err)

		_, err = f.service.SignIn(ctx, req)
		require.ErrorIs(t, err, errors.ErrNonceNotFound)
	})

	t.Run("without nonce", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.SignIn(ctx, &auth.SignInRequest{
			WalletAddress: f.address,
			SignedMessage: f.sign(t, f.key, "made-up"),
		})
		require.ErrorIs(t, err, errors.ErrNonceNotFound)
	})

	t.Run("signed by another key", func(t *testing.T) {
		f := newFixture(t)
		n, err := f.service.IssueNonce(ctx, &auth.NewNonceRequest{WalletAddress: f.address})
		require.NoError(t, err)

		other, err := crypto.GenerateKey()
		require.NoError(t, err)

		_, err = f.service.SignIn(ctx, &auth.SignInRequest{
			WalletAddress: f.address,
			SignedMessage: f.sign(t, other, n.Nonce),
		})
		require.ErrorIs(t, err, errors.ErrInvalidSignature)
		require.Equal(t, 0, f.repo.Count())
	})

	t.Run("malformed signature", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.SignIn(ctx, &auth.SignInRequest{
			WalletAddress: f.address,
			SignedMessage: "0x1234",
		})
		appErr, ok := errors.AsAppError(err)
		require.True(t, ok)
		require.Equal(t, errors.CodeInvalidInput, appErr.Code)
	})
}

func TestService_IssueNonce_InvalidAddress(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.IssueNonce(context.Background(), &auth.NewNonceRequest{WalletAddress: "0xnot-an-address"})
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, errors.CodeInvalidInput, appErr.Code)
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	n, err := f.service.IssueNonce(ctx, &auth.NewNonceRequest{WalletAddress: f.address})
	require.NoError(t, err)
	issued, err := f.service.SignIn(ctx, &auth.SignInRequest{
		WalletAddress: f.address,
		SignedMessage: f.sign(t, f.key, n.Nonce),
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, issued.Token))
	// Idempotent.
	require.NoError(t, f.service.Logout(ctx, issued.Token))

	_, err = f.service.Authenticate(ctx, issued.Token)
	require.ErrorIs(t, err, errors.ErrUnauthorized)

	require.ErrorIs(t, f.service.Logout(ctx, "garbage"), errors.ErrUnauthorized)
}

func (f *fixture) repoAddress() string {
	return strings.ToLower(f.address)
}
