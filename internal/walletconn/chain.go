package walletconn

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ChainClient is the RPC surface the session uses. *ethclient.Client
// satisfies it.
type ChainClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ ChainClient = (*ethclient.Client)(nil)

// DialChains connects to every chainID -> RPC url pair. Already dialed
// clients are closed if a later one fails.
func DialChains(ctx context.Context, urls map[int64]string) (map[int64]ChainClient, func(), error) {
	clients := make(map[int64]*ethclient.Client, len(urls))
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	for id, url := range urls {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("dial chain %d: %w", id, err)
		}
		clients[id] = c
	}

	out := make(map[int64]ChainClient, len(clients))
	for id, c := range clients {
		out[id] = c
	}
	return out, closeAll, nil
}

// ContractCall describes a contract function invocation
type ContractCall struct {
	ChainID int64
	Address common.Address
	ABI     abi.ABI
	Method  string
	Args    []any
	// Value is the wei sent with payable calls
	Value *big.Int
	// From overrides the caller for reads and estimates; defaults to the
	// connected address
	From common.Address
}

// DecodedEvent is one receipt log decoded with the call's ABI
type DecodedEvent struct {
	Name    string
	Address common.Address
	Args    map[string]any
}

func (m *SessionManager) chain(chainID int64) (ChainClient, error) {
	c, ok := m.cfg.Chains[chainID]
	if !ok {
		return nil, errors.ChainError(fmt.Sprintf("No RPC configured for chain %d", chainID))
	}
	return c, nil
}

func (m *SessionManager) callMsg(call ContractCall) (ethereum.CallMsg, error) {
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return ethereum.CallMsg{}, fmt.Errorf("pack %s: %w", call.Method, err)
	}
	from := call.From
	if from == (common.Address{}) {
		if w, ok := m.ConnectedWallet(); ok {
			from = w.Address
		}
	}
	to := call.Address
	return ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: call.Value,
		Data:  data,
	}, nil
}

// GetBalance returns the wei balance of address on chainID
func (m *SessionManager) GetBalance(ctx context.Context, chainID int64, address string) (*big.Int, error) {
	client, err := m.chain(chainID)
	if err != nil {
		return nil, err
	}
	balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("get balance on chain %d: %w", chainID, err)
	}
	return balance, nil
}

// ReadContract calls a view or pure function and unpacks its outputs
func (m *SessionManager) ReadContract(ctx context.Context, call ContractCall) ([]any, error) {
	client, err := m.chain(call.ChainID)
	if err != nil {
		return nil, err
	}
	msg, err := m.callMsg(call)
	if err != nil {
		return nil, err
	}

	out, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", call.Method, err)
	}
	values, err := call.ABI.Unpack(call.Method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", call.Method, err)
	}
	return values, nil
}

// EstimateGas estimates the gas a contract call would use
func (m *SessionManager) EstimateGas(ctx context.Context, call ContractCall) (uint64, error) {
	client, err := m.chain(call.ChainID)
	if err != nil {
		return 0, err
	}
	msg, err := m.callMsg(call)
	if err != nil {
		return 0, err
	}

	gas, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("estimate gas for %s: %w", call.Method, err)
	}
	return gas, nil
}

// WriteContract signs an EIP-1559 transaction with the connected wallet,
// sends it, waits for the receipt and decodes its logs.
func (m *SessionManager) WriteContract(ctx context.Context, call ContractCall) ([]DecodedEvent, error) {
	client, err := m.chain(call.ChainID)
	if err != nil {
		return nil, err
	}
	signer, err := m.signer(ctx)
	if err != nil {
		return nil, err
	}
	from := signer.Address()

	// 1. calldata + gas
	call.From = from
	msg, err := m.callMsg(call)
	if err != nil {
		return nil, err
	}
	gas, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas for %s: %w", call.Method, err)
	}

	// 2. fees: tip + 2 * base fee
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	// 3. sign + send
	chainID := big.NewInt(call.ChainID)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        msg.To,
		Value:     call.Value,
		Data:      msg.Data,
	})
	signed, err := signer.SignTx(ctx, tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", call.Method, err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send %s: %w", call.Method, err)
	}

	m.logger.Info("transaction sent",
		zap.Int64("chain_id", call.ChainID),
		zap.String("method", call.Method),
		zap.String("tx_hash", signed.Hash().Hex()),
	)

	// 4. receipt
	receipt, err := m.waitReceipt(ctx, client, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, errors.ChainError(fmt.Sprintf("Transaction %s reverted", signed.Hash().Hex()))
	}
	return decodeLogs(call.ABI, receipt.Logs), nil
}

func (m *SessionManager) waitReceipt(ctx context.Context, client ChainClient, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.TxTimeout)
	defer cancel()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !stderrors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// decodeLogs decodes the logs that match an event in contractABI. Logs of
// other contracts' events are skipped.
func decodeLogs(contractABI abi.ABI, logs []*types.Log) []DecodedEvent {
	var out []DecodedEvent
	for _, l := range logs {
		if len(l.Topics) == 0 {
			continue
		}
		ev, err := contractABI.EventByID(l.Topics[0])
		if err != nil {
			continue
		}

		args := make(map[string]any)
		if err := ev.Inputs.NonIndexed().UnpackIntoMap(args, l.Data); err != nil {
			continue
		}
		var indexed abi.Arguments
		for _, in := range ev.Inputs {
			if in.Indexed {
				indexed = append(indexed, in)
			}
		}
		if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
			continue
		}

		out = append(out, DecodedEvent{Name: ev.Name, Address: l.Address, Args: args})
	}
	return out
}
