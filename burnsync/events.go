package burnsync

import (
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/meantime-io/receivables-go/contracts/MessageTransmitter"
)

// MessageSentSignatureHash is the topic of the transmitter's burn-message
// event. The message bytes ride in the log data, abi-encoded.
var MessageSentSignatureHash = transmitterParser().MessageSentID()

var (
	transmitterParserOnce sync.Once
	transmitterParserInst *MessageTransmitter.MessageTransmitter
)

// transmitterParser is a parse-only binding instance. The nil backend is
// fine; unpacking logs only touches the ABI.
func transmitterParser() *MessageTransmitter.MessageTransmitter {
	transmitterParserOnce.Do(func() {
		parser, err := MessageTransmitter.NewMessageTransmitter(ethcommon.Address{}, nil)
		if err != nil {
			// the ABI is a compile-time constant; failing to parse it is
			// a programming error
			panic(err)
		}
		transmitterParserInst = parser
	})
	return transmitterParserInst
}

// DecodeMessageSent extracts the raw message bytes from a MessageSent log.
func DecodeMessageSent(vlog types.Log) ([]byte, error) {
	ev, err := transmitterParser().ParseMessageSent(vlog)
	if err != nil {
		return nil, err
	}
	return ev.Message, nil
}
