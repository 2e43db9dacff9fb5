package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

// Backend is the subset of the Ethereum RPC used by the client
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type Config struct {
	ContractAddress string
	PrivateKey      string // hex, with or without 0x
	ChainID         int64  // 0 asks the node
	GasMultiplier   float64
	ReceiptTimeout  time.Duration
	PollInterval    time.Duration
}

// Client signs and submits calls to the lending contract from the liquidator wallet
type Client struct {
	backend  Backend
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   gethtypes.Signer
	cfg      Config
	log      *logger.Logger

	// nonce fetch and broadcast are serialized; receipt waits are not
	sendMu sync.Mutex
}

// Dial connects to rpcURL and builds a Client
func Dial(ctx context.Context, rpcURL string, cfg Config, log *logger.Logger) (*Client, *ethclient.Client, error) {
	trimmed := strings.TrimSpace(rpcURL)
	if trimmed == "" {
		return nil, nil, errors.NewValidationError("rpc_url", "required", rpcURL)
	}
	ec, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dial chain rpc")
	}
	c, err := New(ctx, ec, cfg, log)
	if err != nil {
		ec.Close()
		return nil, nil, err
	}
	return c, ec, nil
}

func New(ctx context.Context, backend Backend, cfg Config, log *logger.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, errors.NewValidationError("contract_address", "not a hex address", cfg.ContractAddress)
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "parse liquidator private key")
	}
	parsed, err := parseLoanABI()
	if err != nil {
		return nil, errors.Wrap(err, "parse contract abi")
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = backend.ChainID(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "query chain id")
		}
	}

	if cfg.GasMultiplier < 1 {
		cfg.GasMultiplier = 1
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if log == nil {
		log = logger.Get()
	}

	from := gethcrypto.PubkeyToAddress(key.PublicKey)
	return &Client{
		backend:  backend,
		contract: common.HexToAddress(cfg.ContractAddress),
		abi:      parsed,
		key:      key,
		from:     from,
		signer:   gethtypes.LatestSignerForChainID(chainID),
		cfg:      cfg,
		log:      log.Component("chain").With("wallet", from.Hex()),
	}, nil
}

// Address is the liquidator wallet address
func (c *Client) Address() string { return c.from.Hex() }

// ReadView calls a read-only contract method and returns its decoded outputs
func (c *Client) ReadView(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(c.decodeRevert(err), "call %s", method)
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	return values, nil
}

// Submit signs and broadcasts a contract call, then blocks until it is mined.
// It returns the transaction hash; a mined-but-reverted transaction is an error.
func (c *Client) Submit(ctx context.Context, method string, args ...interface{}) (string, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return "", errors.Wrapf(err, "pack %s", method)
	}
	msg := ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}

	tx, err := c.send(ctx, msg)
	if err != nil {
		return "", errors.Wrapf(err, "submit %s", method)
	}
	c.log.Infow("Transaction broadcast", "method", method, "tx", tx.Hash().Hex(), "nonce", tx.Nonce(), "gas", tx.Gas())

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return tx.Hash().Hex(), errors.Wrapf(err, "wait %s", tx.Hash().Hex())
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		// Replay at the inclusion block to recover the revert reason
		_, callErr := c.backend.CallContract(ctx, msg, receipt.BlockNumber)
		if callErr != nil {
			return tx.Hash().Hex(), fmt.Errorf("%w: %s: %w", errors.ErrTransactionReverted, tx.Hash().Hex(), c.decodeRevert(callErr))
		}
		return tx.Hash().Hex(), errors.Wrapf(errors.ErrTransactionReverted, "%s", tx.Hash().Hex())
	}

	return tx.Hash().Hex(), nil
}

// Balance returns the wallet's native balance in wei
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, c.from, nil)
	if err != nil {
		return nil, errors.Wrap(err, "query wallet balance")
	}
	return bal, nil
}

// HasSufficientGas reports whether the wallet holds at least minWei
func (c *Client) HasSufficientGas(ctx context.Context, minWei *big.Int) (bool, error) {
	bal, err := c.Balance(ctx)
	if err != nil {
		return false, err
	}
	return bal.Cmp(minWei) >= 0, nil
}

// Ping checks the node is reachable
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.backend.ChainID(ctx)
	return errors.Wrap(err, "chain rpc")
}

func (c *Client) send(ctx context.Context, msg ethereum.CallMsg) (*gethtypes.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	// Estimation runs the call, so a liquidation that would revert fails here
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(c.decodeRevert(err), "estimate gas")
	}
	gas = uint64(float64(gas) * c.cfg.GasMultiplier)

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "suggest gas price")
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, errors.Wrap(err, "pending nonce")
	}

	tx, err := gethtypes.SignTx(gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       msg.To,
		Data:     msg.Data,
	}), c.signer, c.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return nil, errors.Wrap(c.decodeRevert(err), "send transaction")
	}
	return tx, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debugw("Receipt lookup failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrTimeout, "transaction not mined")
		case <-ticker.C:
		}
	}
}

// decodeRevert appends the revert reason or custom error name carried in an
// RPC error's data, so callers can classify it by message.
func (c *Client) decodeRevert(err error) error {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return err
	}
	hexData, ok := de.ErrorData().(string)
	if !ok {
		return err
	}
	data, decErr := hexutil.Decode(hexData)
	if decErr != nil || len(data) < 4 {
		return err
	}
	if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return fmt.Errorf("%w: %s", err, reason)
	}
	for name, e := range c.abi.Errors {
		if bytes.Equal(e.ID[:4], data[:4]) {
			return fmt.Errorf("%w: %s", err, name)
		}
	}
	return err
}
