package etherman

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/contracts/MessageTransmitter"
	"github.com/meantime-io/receivables-go/contracts/ReceivablesEscrow"
)

var (
	ErrNoSigner         = errors.New("etherman has no signing key configured")
	ErrNoEscrow         = errors.New("etherman has no escrow contract bound")
	ErrNoTransmitter    = errors.New("etherman has no transmitter contract bound")
	ErrWaitMinedTimeout = errors.New("timed out waiting for transaction to be mined")
	ErrTxReverted       = errors.New("transaction reverted")
)

func ErrChainIDUnmatched(expected, actual *big.Int) error {
	return fmt.Errorf("chain ID mismatch: expected=%v, actual=%v", expected, actual)
}

const receiptPollInterval = 1 * time.Second

type ethereumClient interface {
	ethereum.ChainReader
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.LogFilterer
	ethereum.TransactionReader
	ethereum.TransactionSender

	bind.DeployBackend
	bind.ContractBackend

	BlockNumber(ctx context.Context) (uint64, error)
}

// Etherman wraps one chain's rpc client plus the contracts deployed there.
// The destination-chain instance carries the escrow, the transmitter and
// the signing key; the source-chain instance is read-only.
type Etherman struct {
	client      ethereumClient
	auth        *bind.TransactOpts
	escrow      *ReceivablesEscrow.ReceivablesEscrow
	transmitter *MessageTransmitter.MessageTransmitter
}

func NewEtherman(cfg *Config) (*Etherman, error) {
	client, err := ethclient.Dial(cfg.URL)
	if err != nil {
		logger.Errorf("failed to connect to chain rpc at %s: %v", cfg.URL, err)
		return nil, err
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, err
	}
	if cfg.ChainID != nil && chainID.Cmp(cfg.ChainID) != 0 {
		return nil, ErrChainIDUnmatched(cfg.ChainID, chainID)
	}

	return newEtherman(client, chainID, cfg)
}

// NewEthermanWithClient skips dialing; tests hand in a fake client.
func NewEthermanWithClient(client ethereumClient, chainID *big.Int, cfg *Config) (*Etherman, error) {
	return newEtherman(client, chainID, cfg)
}

func newEtherman(client ethereumClient, chainID *big.Int, cfg *Config) (*Etherman, error) {
	e := &Etherman{client: client}

	if cfg.PrivKey != nil {
		auth, err := bind.NewKeyedTransactorWithChainID(cfg.PrivKey, chainID)
		if err != nil {
			return nil, err
		}
		e.auth = auth
	}

	if cfg.EscrowAddress != (ethcommon.Address{}) {
		escrow, err := ReceivablesEscrow.NewReceivablesEscrow(cfg.EscrowAddress, client)
		if err != nil {
			return nil, err
		}
		e.escrow = escrow
	}

	if cfg.TransmitterAddress != (ethcommon.Address{}) {
		transmitter, err := MessageTransmitter.NewMessageTransmitter(cfg.TransmitterAddress, client)
		if err != nil {
			return nil, err
		}
		e.transmitter = transmitter
	}

	return e, nil
}

func (e *Etherman) Client() ethereumClient {
	return e.client
}

func (e *Etherman) Escrow() *ReceivablesEscrow.ReceivablesEscrow {
	return e.escrow
}

func (e *Etherman) Transmitter() *MessageTransmitter.MessageTransmitter {
	return e.transmitter
}

func (e *Etherman) SignerAddress() ethcommon.Address {
	if e.auth == nil {
		return ethcommon.Address{}
	}
	return e.auth.From
}

func (e *Etherman) BlockNumber(ctx context.Context) (uint64, error) {
	return e.client.BlockNumber(ctx)
}

// FilterLogs fetches logs for one contract over an inclusive block range.
// Callers chunk ranges to the rpc provider's page limit.
func (e *Etherman) FilterLogs(ctx context.Context, from, to uint64, address ethcommon.Address, topics [][]ethcommon.Hash) ([]types.Log, error) {
	return e.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethcommon.Address{address},
		Topics:    topics,
	})
}

// WaitMined polls for the receipt until the tx is mined or the timeout
// elapses. Expiry is a distinct, reportable failure, not a crash.
func (e *Etherman) WaitMined(ctx context.Context, txHash ethcommon.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil && receipt.BlockNumber != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrWaitMinedTimeout
		case <-ticker.C:
		}
	}
}
