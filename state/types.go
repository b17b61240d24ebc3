package state

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/meantime-io/receivables-go/common"
)

// Listing is the optional sale terms attached to a receivable.
// Present iff the claim is currently offered for sale.
type Listing struct {
	ReservePrice *big.Int
	PaymentAsset ethcommon.Address
}

func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	return &Listing{
		ReservePrice: common.BigIntClone(l.ReservePrice),
		PaymentAsset: l.PaymentAsset,
	}
}

// Receivable is one in-flight cross-chain transfer: burned on the source
// chain, optimistically minted on the destination chain, waiting to be
// settled against an attestation.
type Receivable struct {
	// destination-chain token id, assigned at mint, never reused
	Id *big.Int

	// keccak of the raw burn message; the cross-chain correlation key
	MessageHash ethcommon.Hash

	InboundAsset  ethcommon.Address
	InboundAmount *big.Int

	MintedAtBlock uint64

	// address entitled to redeem; changes on marketplace fills
	CurrentOwner ethcommon.Address

	// nil when not listed for sale
	Listing *Listing
}

func (r *Receivable) Clone() *Receivable {
	if r == nil {
		return nil
	}
	return &Receivable{
		Id:            common.BigIntClone(r.Id),
		MessageHash:   r.MessageHash,
		InboundAsset:  r.InboundAsset,
		InboundAmount: common.BigIntClone(r.InboundAmount),
		MintedAtBlock: r.MintedAtBlock,
		CurrentOwner:  r.CurrentOwner,
		Listing:       r.Listing.Clone(),
	}
}

// Patch is a partial update applied by ApplyPatch. SetListing distinguishes
// "clear the listing" (SetListing, Listing nil) from "leave it alone".
type Patch struct {
	SetListing bool
	Listing    *Listing
	Owner      *ethcommon.Address
}
