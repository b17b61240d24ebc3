package escrowsync

import (
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"

	"github.com/meantime-io/receivables-go/contracts/ReceivablesEscrow"
)

// Topic hashes for the five escrow lifecycle events, derived from the
// binding's ABI so the filter and the decoder can never disagree.
var (
	MintedSignatureHash   = logParser().EventID("Minted")
	ListedSignatureHash   = logParser().EventID("Listed")
	DelistedSignatureHash = logParser().EventID("Delisted")
	FilledSignatureHash   = logParser().EventID("Filled")
	SettledSignatureHash  = logParser().EventID("Settled")

	AllSignatureHashes = []ethcommon.Hash{
		MintedSignatureHash,
		ListedSignatureHash,
		DelistedSignatureHash,
		FilledSignatureHash,
		SettledSignatureHash,
	}
)

// Normalized domain events, decoupled from the raw log shape.

type MintedEvent struct {
	TokenId     *big.Int
	MessageHash ethcommon.Hash
	Owner       ethcommon.Address
	Asset       ethcommon.Address
	Amount      *big.Int
	BlockNumber uint64
}

type ListedEvent struct {
	TokenId      *big.Int
	PaymentAsset ethcommon.Address
	ReservePrice *big.Int
}

type DelistedEvent struct {
	TokenId *big.Int
}

type FilledEvent struct {
	TokenId *big.Int
	Buyer   ethcommon.Address
}

type SettledEvent struct {
	TokenId     *big.Int
	MessageHash ethcommon.Hash
}

// EventBatch groups one fetch's logs by kind, preserving chronological
// order within each kind. Application order across kinds is fixed: mints
// first so every later patch has a receivable to land on, settles last so
// a settle always wins over earlier listing state for the same id.
type EventBatch struct {
	Minted   []*MintedEvent
	Listed   []*ListedEvent
	Delisted []*DelistedEvent
	Filled   []*FilledEvent
	Settled  []*SettledEvent
}

func (b *EventBatch) Append(other *EventBatch) {
	b.Minted = append(b.Minted, other.Minted...)
	b.Listed = append(b.Listed, other.Listed...)
	b.Delisted = append(b.Delisted, other.Delisted...)
	b.Filled = append(b.Filled, other.Filled...)
	b.Settled = append(b.Settled, other.Settled...)
}

var (
	escrowParserOnce sync.Once
	escrowParser     *ReceivablesEscrow.ReceivablesEscrow
)

// logParser is a parse-only binding instance. The nil backend is fine;
// unpacking logs only touches the ABI.
func logParser() *ReceivablesEscrow.ReceivablesEscrow {
	escrowParserOnce.Do(func() {
		parser, err := ReceivablesEscrow.NewReceivablesEscrow(ethcommon.Address{}, nil)
		if err != nil {
			// the ABI is a compile-time constant; failing to parse it is
			// a programming error
			panic(err)
		}
		escrowParser = parser
	})
	return escrowParser
}

// DecodeLogs sorts raw logs into an EventBatch. Logs missing an indexed
// topic, or carrying undecodable data, are skipped with a warning:
// partially-indexed logs must never crash the reconciler.
func DecodeLogs(logs []types.Log) *EventBatch {
	batch := &EventBatch{}

	for _, vlog := range logs {
		if len(vlog.Topics) == 0 {
			continue
		}

		switch vlog.Topics[0] {
		case MintedSignatureHash:
			ev, err := logParser().ParseMinted(vlog)
			if err != nil {
				logger.Warnf("undecodable Minted log in block %d: %v", vlog.BlockNumber, err)
				continue
			}
			batch.Minted = append(batch.Minted, &MintedEvent{
				TokenId:     ev.TokenId,
				MessageHash: ethcommon.Hash(ev.MessageHash),
				Owner:       ev.Owner,
				Asset:       ev.Asset,
				Amount:      ev.Amount,
				BlockNumber: vlog.BlockNumber,
			})
		case ListedSignatureHash:
			ev, err := logParser().ParseListed(vlog)
			if err != nil {
				logger.Warnf("undecodable Listed log in block %d: %v", vlog.BlockNumber, err)
				continue
			}
			batch.Listed = append(batch.Listed, &ListedEvent{
				TokenId:      ev.TokenId,
				PaymentAsset: ev.PaymentAsset,
				ReservePrice: ev.ReservePrice,
			})
		case DelistedSignatureHash:
			ev, err := logParser().ParseDelisted(vlog)
			if err != nil {
				logger.Warnf("undecodable Delisted log in block %d: %v", vlog.BlockNumber, err)
				continue
			}
			batch.Delisted = append(batch.Delisted, &DelistedEvent{TokenId: ev.TokenId})
		case FilledSignatureHash:
			ev, err := logParser().ParseFilled(vlog)
			if err != nil {
				logger.Warnf("undecodable Filled log in block %d: %v", vlog.BlockNumber, err)
				continue
			}
			batch.Filled = append(batch.Filled, &FilledEvent{
				TokenId: ev.TokenId,
				Buyer:   ev.Buyer,
			})
		case SettledSignatureHash:
			ev, err := logParser().ParseSettled(vlog)
			if err != nil {
				logger.Warnf("undecodable Settled log in block %d: %v", vlog.BlockNumber, err)
				continue
			}
			batch.Settled = append(batch.Settled, &SettledEvent{
				TokenId:     ev.TokenId,
				MessageHash: ethcommon.Hash(ev.MessageHash),
			})
		default:
			// foreign log on the escrow address, not ours to decode
		}
	}

	return batch
}
