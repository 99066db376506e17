package walletconn

import (
	"context"
	stderrors "errors"
	"math/big"
	"testing"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/pkg/sigverify"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubConnector counts connects and disconnects
type stubConnector struct {
	id            string
	provider      Provider
	disconnectErr error

	connects    int
	disconnects int
}

func (s *stubConnector) ID() string   { return s.id }
func (s *stubConnector) Name() string { return s.id }

func (s *stubConnector) Connect(context.Context) (Provider, error) {
	s.connects++
	return s.provider, nil
}

func (s *stubConnector) Disconnect(context.Context) error {
	s.disconnects++
	return s.disconnectErr
}

func TestSessionManager_Registry(t *testing.T) {
	m := NewSessionManager(SessionConfig{}, nil)
	a := &stubConnector{id: "a"}
	b := &stubConnector{id: "b"}
	m.Register(a, b)
	m.Register(&stubConnector{id: "a"})

	ids := []string{}
	for _, c := range m.Connectors() {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"a", "b"}, ids)

	_, err := m.Connect(context.Background(), "nope")
	assert.ErrorIs(t, err, errors.ErrUnknownWallet)
}

func TestSessionManager_ConnectedWalletInfo(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(SessionConfig{}, nil)
	stub := &stubConnector{id: MetaMaskID}
	m.Register(stub)

	assert.Equal(t, "", m.GetConnectedAddress())

	m.SetConnectedWalletInfo(MetaMaskID, "0x00000000000000000000000000000000000000ab")
	assert.Equal(t, "0x00000000000000000000000000000000000000AB", m.GetConnectedAddress())

	w, ok := m.ConnectedWallet()
	require.True(t, ok)
	assert.Equal(t, MetaMaskID, w.WalletID)

	// Disconnecting the connected wallet clears the info.
	require.NoError(t, m.Disconnect(ctx, MetaMaskID))
	assert.Equal(t, "", m.GetConnectedAddress())
	assert.Equal(t, 1, stub.disconnects)
}

func TestSessionManager_DisconnectAll(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(SessionConfig{}, nil)
	ok := &stubConnector{id: "ok"}
	broken := &stubConnector{id: "broken", disconnectErr: stderrors.New("socket closed")}
	m.Register(ok, broken)
	m.SetConnectedWalletInfo("ok", "0x00000000000000000000000000000000000000ab")

	err := m.DisconnectAll(ctx)
	require.ErrorContains(t, err, "disconnect broken: socket closed")
	assert.Equal(t, 1, ok.disconnects)
	assert.Equal(t, 1, broken.disconnects)
	assert.Equal(t, "", m.GetConnectedAddress())
}

func TestSessionManager_SignerReconnects(t *testing.T) {
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	stub := &stubConnector{id: DevKeyID, provider: &keySigner{key: key, address: addr}}
	m := NewSessionManager(SessionConfig{}, nil)
	m.Register(stub)

	// Restored session: connected info present but no live provider.
	m.SetConnectedWalletInfo(DevKeyID, addr.Hex())
	s, err := m.signer(ctx)
	require.NoError(t, err)
	assert.Equal(t, addr, s.Address())
	assert.Equal(t, 1, stub.connects)

	// Live provider is reused.
	_, err = m.signer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.connects)
}

func TestSessionManager_LiveAddress(t *testing.T) {
	ctx := context.Background()
	recorded, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherAddr := crypto.PubkeyToAddress(other.PublicKey)

	m := NewSessionManager(SessionConfig{}, nil)
	m.Register(NewKeyConnector(DevKeyID, "Dev Key", other))

	_, err = m.LiveAddress(ctx)
	require.ErrorIs(t, err, errors.ErrNotLoggedIn)

	// Recorded for one key, the wallet now signs with another.
	m.SetConnectedWalletInfo(DevKeyID, crypto.PubkeyToAddress(recorded.PublicKey).Hex())

	live, err := m.LiveAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, otherAddr.Hex(), live)

	_, err = m.signer(ctx)
	require.ErrorIs(t, err, errors.ErrWalletAddressMismatch)
}

func TestPrivateKeyConnector(t *testing.T) {
	ctx := context.Background()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	c, err := NewPrivateKeyConnector(DevKeyID, "Dev Key", hexKey)
	require.NoError(t, err)

	p, err := c.Connect(ctx)
	require.NoError(t, err)
	accounts, err := p.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), accounts[0].Address)

	_, err = NewPrivateKeyConnector(DevKeyID, "Dev Key", "not-a-key")
	assert.Error(t, err)
}

func TestKeystoreConnector(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.NewAccount("correct horse")
	require.NoError(t, err)

	c := NewKeystoreConnector(dir, "correct horse", nil)
	p, err := c.Connect(ctx)
	require.NoError(t, err)

	accounts, err := p.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, acct.Address, accounts[0].Address)

	s, err := p.Signer(ctx)
	require.NoError(t, err)

	message := sigverify.LoginMessage("Sign in", "n-1")
	sig, err := s.SignMessage(ctx, message)
	require.NoError(t, err)
	ok, err := sigverify.NewEthVerifier(nil).VerifyPersonalSign(acct.Address.Hex(), message, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	chainID := big.NewInt(testChainID)
	tx := types.NewTx(&types.DynamicFeeTx{ChainID: chainID, Gas: 21000, To: &tokenAddress})
	signed, err := s.SignTx(ctx, tx, chainID)
	require.NoError(t, err)
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, acct.Address, sender)

	wrong := NewKeystoreConnector(dir, "wrong", nil)
	wp, err := wrong.Connect(ctx)
	require.NoError(t, err)
	ws, err := wp.Signer(ctx)
	require.NoError(t, err)
	_, err = ws.SignMessage(ctx, message)
	assert.Error(t, err)
}

func TestKeystoreConnector_Empty(t *testing.T) {
	ctx := context.Background()
	c := NewKeystoreConnector(t.TempDir(), "", nil)

	p, err := c.Connect(ctx)
	require.NoError(t, err)
	accounts, err := p.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = p.Signer(ctx)
	assert.ErrorIs(t, err, errEmptyKeystore)
}
