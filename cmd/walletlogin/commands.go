package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ahwlsqja/walletlogin/internal/walletconn"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

var errUsage = stderrors.New("invalid arguments, run without arguments for usage")

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx)
	case "logout":
		return a.logout(ctx)
	case "status":
		return a.status(ctx)
	case "balance":
		return a.balance(ctx, args)
	case "token-balance":
		return a.tokenBalance(ctx, args)
	case "transfer":
		return a.transfer(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) login(ctx context.Context) error {
	address, err := a.manager.Login(ctx)
	a.screen.Wait()
	if err != nil {
		if stderrors.Is(err, errors.ErrLoginCanceled) {
			fmt.Println("Login canceled.")
			return nil
		}
		return err
	}
	fmt.Printf("Logged in with %s as %s\n", a.manager.GetLoggedInWallet(), address)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	wasLoggedIn := a.manager.IsLoggedIn()
	if err := a.manager.Logout(ctx); err != nil {
		return err
	}
	if wasLoggedIn {
		fmt.Println("Logged out.")
	} else {
		fmt.Println("Not logged in.")
	}
	return nil
}

func (a *app) status(ctx context.Context) error {
	fmt.Printf("State:   %s\n", a.manager.State())
	if !a.manager.IsLoggedIn() {
		return nil
	}
	fmt.Printf("Wallet:  %s\n", a.manager.GetLoggedInWallet())
	fmt.Printf("Address: %s\n", a.manager.GetLoggedInAddress())

	info, err := a.backend.Me(ctx, a.manager.Token())
	if err != nil {
		// 토큰 만료/폐기 여부만 표시, 로컬 상태는 유지
		a.logger.Warn("backend session check failed", zap.Error(err))
		fmt.Printf("Backend: session not valid (%v)\n", err)
		return nil
	}
	fmt.Printf("Backend: session %s valid until %s\n", info.SessionID, info.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func (a *app) balance(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	chainID, err := parseChainID(args[0])
	if err != nil {
		return err
	}

	wei, err := a.manager.GetBalance(ctx, chainID)
	if err != nil {
		return err
	}
	fmt.Printf("%s wei\n", wei)
	return nil
}

func (a *app) tokenBalance(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	chainID, err := parseChainID(args[0])
	if err != nil {
		return err
	}
	tokenAddr, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	owner := a.manager.GetLoggedInAddress()
	if owner == "" {
		return errors.NotLoggedIn()
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return err
	}
	out, err := a.manager.ReadContract(ctx, walletconn.ContractCall{
		ChainID: chainID,
		Address: tokenAddr,
		ABI:     parsed,
		Method:  "balanceOf",
		Args:    []any{common.HexToAddress(owner)},
	})
	if err != nil {
		return err
	}
	if len(out) != 1 {
		return fmt.Errorf("balanceOf returned %d values", len(out))
	}
	fmt.Printf("%v\n", out[0])
	return nil
}

func (a *app) transfer(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return errUsage
	}
	chainID, err := parseChainID(args[0])
	if err != nil {
		return err
	}
	tokenAddr, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	to, err := parseAddress(args[2])
	if err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(args[3], 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("invalid amount %q", args[3])
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return err
	}
	call := walletconn.ContractCall{
		ChainID: chainID,
		Address: tokenAddr,
		ABI:     parsed,
		Method:  "transfer",
		Args:    []any{to, amount},
	}

	gas, err := a.manager.EstimateGas(ctx, call)
	if err != nil {
		a.logger.Debug("gas estimate failed", zap.Error(err))
	} else {
		fmt.Printf("Estimated gas: %d\n", gas)
	}

	events, err := a.manager.WriteContract(ctx, call)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotLoggedIn) || stderrors.Is(err, errors.ErrWalletAddressMismatch) {
			// 로그인 안내가 끝날 때까지 대기 후 재시도 안내
			a.manager.Wait()
			a.screen.Wait()
			if a.manager.IsLoggedIn() {
				fmt.Println("Logged in. Run the transfer again.")
			}
		}
		return err
	}

	for _, ev := range events {
		fmt.Printf("%s %v\n", ev.Name, ev.Args)
	}
	return nil
}

func parseChainID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
