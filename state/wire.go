package state

import (
	"encoding/json"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Wire form of a receivable, as served over HTTP/SSE. Amounts travel as
// decimal strings so 256-bit values never pass through a float.
type receivableJSON struct {
	Id            string       `json:"id"`
	MessageHash   string       `json:"messageHash"`
	InboundAsset  string       `json:"inboundAsset"`
	InboundAmount string       `json:"inboundAmount"`
	MintedAtBlock uint64       `json:"mintedAtBlock"`
	CurrentOwner  string       `json:"currentOwner"`
	Listing       *listingJSON `json:"listing"`
}

type listingJSON struct {
	ReservePrice string `json:"reservePrice"`
	PaymentAsset string `json:"paymentAsset"`
}

func (r *Receivable) MarshalJSON() ([]byte, error) {
	out := receivableJSON{
		Id:            r.Id.String(),
		MessageHash:   r.MessageHash.Hex(),
		InboundAsset:  r.InboundAsset.Hex(),
		InboundAmount: r.InboundAmount.String(),
		MintedAtBlock: r.MintedAtBlock,
		CurrentOwner:  r.CurrentOwner.Hex(),
	}
	if r.Listing != nil {
		out.Listing = &listingJSON{
			ReservePrice: r.Listing.ReservePrice.String(),
			PaymentAsset: r.Listing.PaymentAsset.Hex(),
		}
	}
	return json.Marshal(out)
}

func (r *Receivable) UnmarshalJSON(data []byte) error {
	var in receivableJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	id, err := parseDecimal(in.Id)
	if err != nil {
		return err
	}
	amount, err := parseDecimal(in.InboundAmount)
	if err != nil {
		return err
	}

	r.Id = id
	r.MessageHash = ethcommon.HexToHash(in.MessageHash)
	r.InboundAsset = ethcommon.HexToAddress(in.InboundAsset)
	r.InboundAmount = amount
	r.MintedAtBlock = in.MintedAtBlock
	r.CurrentOwner = ethcommon.HexToAddress(in.CurrentOwner)
	r.Listing = nil

	if in.Listing != nil {
		reserve, err := parseDecimal(in.Listing.ReservePrice)
		if err != nil {
			return err
		}
		r.Listing = &Listing{
			ReservePrice: reserve,
			PaymentAsset: ethcommon.HexToAddress(in.Listing.PaymentAsset),
		}
	}
	return nil
}

func parseDecimal(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal number: %q", s)
	}
	return v, nil
}
