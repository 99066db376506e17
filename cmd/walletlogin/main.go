package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/backend"
	"github.com/ahwlsqja/walletlogin/internal/config"
	"github.com/ahwlsqja/walletlogin/internal/login"
	"github.com/ahwlsqja/walletlogin/internal/loginflow"
	"github.com/ahwlsqja/walletlogin/internal/modal"
	"github.com/ahwlsqja/walletlogin/internal/session"
	"github.com/ahwlsqja/walletlogin/internal/tui"
	"github.com/ahwlsqja/walletlogin/internal/walletconn"
	"github.com/ahwlsqja/walletlogin/internal/walletconn/walletconnect"
	pkgredis "github.com/ahwlsqja/walletlogin/pkg/redis"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const usage = `usage: walletlogin <command> [args]

commands:
  login                                   open the wallet login modal
  logout                                  log out and revoke the session token
  status                                  show the login state and backend session
  balance <chainID>                       native balance of the logged-in address
  token-balance <chainID> <token>         ERC-20 balance of the logged-in address
  transfer <chainID> <token> <to> <amt>   send ERC-20 tokens (amount in base units)
`

// app holds the wired client
type app struct {
	cfg      *config.ClientConfig
	logger   *zap.Logger
	manager  *login.Manager
	wallets  *walletconn.SessionManager
	backend  *backend.Client
	screen   *tui.Presenter
	shutdown []func()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// 1) 설정 로드
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2) 로거 초기화 (화면은 TUI가 사용하므로 파일로)
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3) 의존성 구성
	a, err := setup(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up client", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// 4) 명령 실행
	err = a.run(ctx, os.Args[1], os.Args[2:])
	a.close()
	if err != nil {
		logger.Warn("command failed", zap.String("command", os.Args[1]), zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func initLogger(cfg *config.ClientConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.OutputPaths = []string{cfg.LogFile}
	zcfg.ErrorOutputPaths = []string{cfg.LogFile}
	return zcfg.Build()
}

func setup(ctx context.Context, cfg *config.ClientConfig, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// Session store
	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	// Backend function calls
	a.backend = backend.New(cfg.BackendURL, cfg.BackendTimeout, logger)

	// Chain RPC
	urls, err := cfg.Chains()
	if err != nil {
		a.close()
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	chains, closeChains, err := walletconn.DialChains(dialCtx, urls)
	if err != nil {
		a.close()
		return nil, err
	}
	a.shutdown = append(a.shutdown, closeChains)

	a.wallets = walletconn.NewSessionManager(walletconn.SessionConfig{
		Chains:       chains,
		TxTimeout:    cfg.TxTimeout,
		PollInterval: cfg.TxPollInterval,
	}, logger)

	// Terminal UI
	prompter := tui.NewPrompter(os.Stdin, os.Stderr, false)
	a.screen = tui.NewPresenter(prompter, logger, tea.WithOutput(os.Stderr))

	// Wallet connectors
	if err := a.registerConnectors(); err != nil {
		a.close()
		return nil, err
	}

	// Login flow, modal and manager
	flow := loginflow.New(a.wallets, a.backend, a.screen, cfg.Statement, logger)
	modals := modal.NewFactory(flow, func() []modal.WalletOption {
		return modal.OptionsFor(a.wallets.Connectors())
	}, a.screen, logger)

	a.manager, err = login.New(ctx, login.Deps{
		Store:    store,
		Wallets:  a.wallets,
		Modals:   modals,
		Prompter: a.screen,
		Backend:  a.backend,
	}, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.shutdown = append(a.shutdown, a.screen.Wait, a.manager.Close)

	a.manager.Subscribe(func(ev login.LoginStatusChanged) {
		logger.Info("login status changed",
			zap.Bool("logged_in", ev.LoggedIn),
			zap.String("wallet", ev.WalletID),
			zap.String("address", ev.Address),
		)
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) (session.Store, error) {
	switch a.cfg.SessionStore {
	case "redis":
		timeout := a.cfg.Redis.DialTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		rdb, err := pkgredis.Open(pingCtx, a.cfg.Redis.Client())
		if err != nil {
			return nil, err
		}
		a.shutdown = append(a.shutdown, func() { _ = rdb.Close() })
		return session.NewRedisStore(rdb, a.cfg.SessionKey), nil
	case "memory":
		return session.NewMemoryStore(), nil
	default:
		return session.NewFileStore(a.cfg.SessionFile)
	}
}

func (a *app) registerConnectors() error {
	chainID := defaultChainID(a.wallets.ChainIDs())
	meta := walletconnect.ClientMeta{
		Name:        "walletlogin",
		Description: "Wallet login for the terminal",
		URL:         a.cfg.BackendURL,
	}

	for _, w := range []struct{ id, name string }{
		{walletconn.WalletConnectID, "WalletConnect"},
		{walletconn.MetaMaskID, "MetaMask"},
		{walletconn.CoinbaseWalletID, "Coinbase Wallet"},
	} {
		c := walletconn.NewWalletConnectConnector(walletconn.WalletConnectConfig{
			ID:          w.id,
			Name:        w.name,
			BridgeURL:   a.cfg.WalletConnectBridge,
			ReadTimeout: a.cfg.WalletConnectReadTimeout,
			ChainID:     chainID,
			Meta:        meta,
		}, a.logger)
		c.SetDisplay(a.screen.ShowPairing)
		a.wallets.Register(c)
	}

	if a.cfg.KeystoreDir != "" {
		a.wallets.Register(walletconn.NewKeystoreConnector(a.cfg.KeystoreDir, a.cfg.KeystorePassphrase, a.logger))
	}

	if a.cfg.DevPrivateKey != "" {
		c, err := walletconn.NewPrivateKeyConnector(walletconn.DevKeyID, "Development Key", a.cfg.DevPrivateKey)
		if err != nil {
			return err
		}
		a.wallets.Register(c)
	}
	return nil
}

// defaultChainID is the lowest configured chain, 0 when none is
func defaultChainID(ids []int64) int64 {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// close runs shutdown hooks in reverse order
func (a *app) close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
	a.shutdown = nil
}
