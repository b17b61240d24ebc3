package etherman

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"
)

// How long a write waits for its receipt before giving up. Every op here
// waits for mining internally, so the tx serialization queue never releases
// the nonce counter to the next op while one is still pending.
const DefaultMineTimeout = 2 * time.Minute

// MintReceivable submits the optimistic destination-chain mint for a
// discovered burn and waits until it is mined.
func (e *Etherman) MintReceivable(ctx context.Context, messageHash ethcommon.Hash, owner, asset ethcommon.Address, amount *big.Int) (ethcommon.Hash, error) {
	if err := e.requireWriter(); err != nil {
		return ethcommon.Hash{}, err
	}

	tx, err := e.escrow.Mint(e.auth, messageHash, owner, asset, amount)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	return e.confirm(ctx, tx, "mint")
}

// FundEscrow credits the escrow for a transfer directly, bypassing the
// message relay. Used as the fallback delivery path.
func (e *Etherman) FundEscrow(ctx context.Context, messageHash ethcommon.Hash) (ethcommon.Hash, error) {
	if err := e.requireWriter(); err != nil {
		return ethcommon.Hash{}, err
	}

	tx, err := e.escrow.Fund(e.auth, messageHash)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	return e.confirm(ctx, tx, "fund")
}

// SettleReceivable finalizes a transfer: the escrow pays the current
// beneficial owner and burns the claim.
func (e *Etherman) SettleReceivable(ctx context.Context, messageHash ethcommon.Hash) (ethcommon.Hash, error) {
	if err := e.requireWriter(); err != nil {
		return ethcommon.Hash{}, err
	}

	tx, err := e.escrow.Settle(e.auth, messageHash)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	return e.confirm(ctx, tx, "settle")
}

// RelayMessage delivers an attested burn message to the destination
// transmitter, which verifies the attestation on-chain.
func (e *Etherman) RelayMessage(ctx context.Context, message, attestation []byte) (ethcommon.Hash, error) {
	if e.auth == nil {
		return ethcommon.Hash{}, ErrNoSigner
	}
	if e.transmitter == nil {
		return ethcommon.Hash{}, ErrNoTransmitter
	}

	tx, err := e.transmitter.ReceiveMessage(e.auth, message, attestation)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	return e.confirm(ctx, tx, "receiveMessage")
}

func (e *Etherman) IsSettled(ctx context.Context, messageHash ethcommon.Hash) (bool, error) {
	if e.escrow == nil {
		return false, ErrNoEscrow
	}
	return e.escrow.IsSettled(&bind.CallOpts{Context: ctx}, messageHash)
}

func (e *Etherman) OwnerOf(ctx context.Context, tokenId *big.Int) (ethcommon.Address, error) {
	if e.escrow == nil {
		return ethcommon.Address{}, ErrNoEscrow
	}
	return e.escrow.OwnerOf(&bind.CallOpts{Context: ctx}, tokenId)
}

func (e *Etherman) requireWriter() error {
	if e.auth == nil {
		return ErrNoSigner
	}
	if e.escrow == nil {
		return ErrNoEscrow
	}
	return nil
}

func (e *Etherman) confirm(ctx context.Context, tx *types.Transaction, op string) (ethcommon.Hash, error) {
	receipt, err := e.WaitMined(ctx, tx.Hash(), DefaultMineTimeout)
	if err != nil {
		logger.WithFields(logger.Fields{
			"op": op,
			"tx": tx.Hash().Hex(),
		}).Error("tx not mined within timeout")
		return ethcommon.Hash{}, err
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return ethcommon.Hash{}, fmt.Errorf("%s tx %s: %w", op, tx.Hash().Hex(), ErrTxReverted)
	}

	return tx.Hash(), nil
}
