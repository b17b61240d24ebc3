// Decoding of raw cross-chain burn messages.
//
// A message is a fixed-offset byte blob: a 116-byte header (routing fields)
// followed by a 132-byte burn body (token, recipient, amount, sender).
// This package never touches the network; it only parses bytes the
// synchronizers hand it.
package cctp

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	headerLen = 116
	bodyLen   = 132

	// header offsets
	offVersion           = 0
	offSourceDomain      = 4
	offDestinationDomain = 8
	offNonce             = 12
	offSender            = 20
	offRecipient         = 52
	offDestinationCaller = 84

	// body offsets, relative to headerLen
	offBodyVersion   = 0
	offBurnToken     = 4
	offMintRecipient = 36
	offAmount        = 68
	offMessageSender = 100
)

type BurnBody struct {
	Version       uint32
	BurnToken     ethcommon.Address
	MintRecipient ethcommon.Address
	Amount        *big.Int
	MessageSender ethcommon.Address
}

// Message is a decoded cross-chain message carrying a burn body.
type Message struct {
	Version           uint32
	SourceDomain      uint32
	DestinationDomain uint32
	Nonce             uint64
	Sender            ethcommon.Hash
	Recipient         ethcommon.Address
	DestinationCaller ethcommon.Hash
	Body              BurnBody

	// Raw keeps the undecoded bytes; the correlation hash and the on-chain
	// relay both need the message exactly as it appeared in the log.
	Raw []byte
}

func ErrMessageTooShort(got, want int) error {
	return fmt.Errorf("message too short: got %d bytes, want at least %d", got, want)
}

// ParseMessage decodes a raw message at fixed offsets.
func ParseMessage(raw []byte) (*Message, error) {
	if len(raw) < headerLen+bodyLen {
		return nil, ErrMessageTooShort(len(raw), headerLen+bodyLen)
	}

	body := raw[headerLen:]

	m := &Message{
		Version:           binary.BigEndian.Uint32(raw[offVersion:]),
		SourceDomain:      binary.BigEndian.Uint32(raw[offSourceDomain:]),
		DestinationDomain: binary.BigEndian.Uint32(raw[offDestinationDomain:]),
		Nonce:             binary.BigEndian.Uint64(raw[offNonce:]),
		Sender:            ethcommon.BytesToHash(raw[offSender : offSender+32]),
		Recipient:         bytes32ToAddress(raw[offRecipient : offRecipient+32]),
		DestinationCaller: ethcommon.BytesToHash(raw[offDestinationCaller : offDestinationCaller+32]),
		Body: BurnBody{
			Version:       binary.BigEndian.Uint32(body[offBodyVersion:]),
			BurnToken:     bytes32ToAddress(body[offBurnToken : offBurnToken+32]),
			MintRecipient: bytes32ToAddress(body[offMintRecipient : offMintRecipient+32]),
			Amount:        new(big.Int).SetBytes(body[offAmount : offAmount+32]),
			MessageSender: bytes32ToAddress(body[offMessageSender : offMessageSender+32]),
		},
		Raw: append([]byte(nil), raw...),
	}

	return m, nil
}

// Hash returns the correlation key: keccak256 over the entire raw message.
// The attestation service indexes by exactly this value.
func (m *Message) Hash() ethcommon.Hash {
	return MessageHash(m.Raw)
}

func MessageHash(raw []byte) ethcommon.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(raw)
	return ethcommon.BytesToHash(h.Sum(nil))
}

// RelevantTo reports whether the burn is addressed to this deployment:
// destination domain matches and the mint recipient is our escrow contract.
// Address comparison is byte-wise, so casing in config never matters.
func (m *Message) RelevantTo(domain uint32, escrow ethcommon.Address) bool {
	return m.DestinationDomain == domain && m.Body.MintRecipient == escrow
}

// bytes32ToAddress takes the low 20 bytes of a left-padded word.
func bytes32ToAddress(b []byte) ethcommon.Address {
	return ethcommon.BytesToAddress(b[12:])
}
