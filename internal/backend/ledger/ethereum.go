package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const DefaultMethod = "addPotholeLocation"

type EthereumConfig struct {
	RPCURL          string
	ContractAddress string
	// PrivateKey is hex encoded, with or without 0x prefix
	PrivateKey string
	// ChainID of 0 asks the node
	ChainID   int64
	Method    string
	WaitMined bool
}

type transactor interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

type nonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

type receiptWaiter func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

// EthereumRecorder calls a contract method taking a single string on an EVM chain.
// Sends are serialized and nonces are assigned locally so concurrent reports do
// not sign the same nonce.
type EthereumRecorder struct {
	contract transactor
	nonces   nonceSource
	auth     *bind.TransactOpts
	method   string
	wait     receiptWaiter
	close    func()

	mu        sync.Mutex
	nextNonce uint64
	haveNonce bool
}

func NewEthereumRecorder(ctx context.Context, cfg EthereumConfig) (*EthereumRecorder, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ethereum rpc url must not be empty")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	method := cfg.Method
	if method == "" {
		method = DefaultMethod
	}
	parsed, err := contractABI(method)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}

	auth, err := keyedTransactor(ctx, client, key, cfg.ChainID)
	if err != nil {
		client.Close()
		return nil, err
	}

	contract := bind.NewBoundContract(common.HexToAddress(cfg.ContractAddress), parsed, client, client, client)
	recorder := &EthereumRecorder{
		contract: contract,
		nonces:   client,
		auth:     auth,
		method:   method,
		close:    client.Close,
	}
	if cfg.WaitMined {
		recorder.wait = func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
			return bind.WaitMined(ctx, client, tx)
		}
	}

	slog.Info("ledger connected", "contract", cfg.ContractAddress, "method", method, "from", auth.From.Hex())
	return recorder, nil
}

func keyedTransactor(ctx context.Context, client *ethclient.Client, key *ecdsa.PrivateKey, configured int64) (*bind.TransactOpts, error) {
	chainID := big.NewInt(configured)
	if configured == 0 {
		var err error
		chainID, err = client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query chain id: %w", err)
		}
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return auth, nil
}

// contractABI describes the only method the recorder needs
func contractABI(method string) (abi.ABI, error) {
	definition := fmt.Sprintf(
		`[{"type":"function","name":%q,"stateMutability":"nonpayable","inputs":[{"name":"location","type":"string"}],"outputs":[]}]`,
		method)
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse contract abi: %w", err)
	}
	return parsed, nil
}

func (r *EthereumRecorder) Record(ctx context.Context, address string) (string, error) {
	tx, err := r.send(ctx, address)
	if err != nil {
		return "", err
	}
	hash := tx.Hash().Hex()

	if r.wait != nil {
		receipt, err := r.wait(ctx, tx)
		if err != nil {
			return hash, fmt.Errorf("failed waiting for transaction %s: %w", hash, err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return hash, fmt.Errorf("transaction %s reverted", hash)
		}
	}
	return hash, nil
}

// send signs and submits the transaction while holding the nonce lock.
// A failed send drops the local nonce so the next call asks the node again.
func (r *EthereumRecorder) send(ctx context.Context, address string) (*types.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	opts := *r.auth
	opts.Context = ctx

	if r.nonces != nil {
		if !r.haveNonce {
			pending, err := r.nonces.PendingNonceAt(ctx, r.auth.From)
			if err != nil {
				return nil, fmt.Errorf("failed to query pending nonce: %w", err)
			}
			r.nextNonce = pending
			r.haveNonce = true
		}
		opts.Nonce = new(big.Int).SetUint64(r.nextNonce)
	}

	tx, err := r.contract.Transact(&opts, r.method, address)
	if err != nil {
		r.haveNonce = false
		return nil, fmt.Errorf("failed to send %s transaction: %w", r.method, err)
	}
	r.nextNonce++
	return tx, nil
}

func (r *EthereumRecorder) Close() error {
	if r.close != nil {
		r.close()
	}
	return nil
}
