package login

import (
	"context"
	"math/big"
	"sync"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/internal/session"
	"github.com/ahwlsqja/walletlogin/internal/walletconn"
)

type fakeWallets struct {
	mu          sync.Mutex
	connected   string
	connectedID string
	disconnects int
	balanceFor  string
	writes      int
	reads       int
	writeErr    error
}

var _ WalletSession = (*fakeWallets)(nil)

func (f *fakeWallets) DisconnectAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected, f.connectedID = "", ""
	return nil
}

func (f *fakeWallets) SetConnectedWalletInfo(walletID, address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectedID, f.connected = walletID, address
}

func (f *fakeWallets) LiveAddress(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected == "" {
		return "", errors.NotLoggedIn()
	}
	return f.connected, nil
}

func (f *fakeWallets) GetBalance(_ context.Context, _ int64, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceFor = address
	return big.NewInt(100), nil
}

func (f *fakeWallets) ReadContract(context.Context, walletconn.ContractCall) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return []any{true}, nil
}

func (f *fakeWallets) EstimateGas(context.Context, walletconn.ContractCall) (uint64, error) {
	return 21000, nil
}

func (f *fakeWallets) WriteContract(context.Context, walletconn.ContractCall) ([]walletconn.DecodedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return []walletconn.DecodedEvent{{Name: "Transfer"}}, nil
}

func (f *fakeWallets) connectedAddress() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeWallets) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// clearFailStore is a memory store whose Clear fails while clearErr is set
type clearFailStore struct {
	*session.MemoryStore
	clearErr error
}

func (s *clearFailStore) Clear(ctx context.Context) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	return s.MemoryStore.Clear(ctx)
}

type fakeBackend struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (f *fakeBackend) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return f.err
}

func (f *fakeBackend) loggedOut() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// scriptedModal resolves with the result of its outcome function
type scriptedModal struct {
	outcome func(ctx context.Context) (Result, error)
}

func (s *scriptedModal) WaitForLogin(ctx context.Context) (Result, error) {
	return s.outcome(ctx)
}

// fakeModals hands out modals from a queue of outcomes
type fakeModals struct {
	mu       sync.Mutex
	outcomes []func(ctx context.Context) (Result, error)
	opened   int
}

func (f *fakeModals) push(fn func(ctx context.Context) (Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, fn)
}

func (f *fakeModals) resolve(r Result) {
	f.push(func(context.Context) (Result, error) { return r, nil })
}

func (f *fakeModals) fail(err error) {
	f.push(func(context.Context) (Result, error) { return Result{}, err })
}

// block waits until the login is canceled, signalling started first
func (f *fakeModals) block(started chan<- struct{}) {
	f.push(func(ctx context.Context) (Result, error) {
		close(started)
		<-ctx.Done()
		return Result{}, context.Cause(ctx)
	})
}

func (f *fakeModals) Open(context.Context) (Modal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	if len(f.outcomes) == 0 {
		return &scriptedModal{outcome: func(ctx context.Context) (Result, error) {
			<-ctx.Done()
			return Result{}, context.Cause(ctx)
		}}, nil
	}
	next := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return &scriptedModal{outcome: next}, nil
}

func (f *fakeModals) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

type fakePrompter struct {
	mu      sync.Mutex
	answer  bool
	prompts []Prompt
}

func (f *fakePrompter) Confirm(_ context.Context, p Prompt) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	return f.answer, nil
}

func (f *fakePrompter) shown() []Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Prompt(nil), f.prompts...)
}
