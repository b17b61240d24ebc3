// Hand-maintained binding for the cross-chain message transmitter.
// The source-chain instance emits MessageSent(bytes) on every burn; the
// destination-chain instance accepts receiveMessage(message, attestation)
// and verifies the attestation signatures on-chain.
package MessageTransmitter

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const MessageTransmitterABI = `[
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"bytes","name":"message","type":"bytes"}],"name":"MessageSent","type":"event"},
{"inputs":[{"internalType":"bytes","name":"message","type":"bytes"},{"internalType":"bytes","name":"attestation","type":"bytes"}],"name":"receiveMessage","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

type MessageTransmitter struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

func NewMessageTransmitter(address common.Address, backend bind.ContractBackend) (*MessageTransmitter, error) {
	parsed, err := abi.JSON(strings.NewReader(MessageTransmitterABI))
	if err != nil {
		return nil, err
	}

	return &MessageTransmitter{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

func (t *MessageTransmitter) Address() common.Address {
	return t.address
}

func (t *MessageTransmitter) MessageSentID() common.Hash {
	return t.abi.Events["MessageSent"].ID
}

func (t *MessageTransmitter) ReceiveMessage(opts *bind.TransactOpts, message []byte, attestation []byte) (*types.Transaction, error) {
	return t.contract.Transact(opts, "receiveMessage", message, attestation)
}

type MessageTransmitterMessageSent struct {
	Message []byte
	Raw     types.Log
}

func (t *MessageTransmitter) ParseMessageSent(log types.Log) (*MessageTransmitterMessageSent, error) {
	ev := new(MessageTransmitterMessageSent)
	if err := t.contract.UnpackLog(ev, "MessageSent", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}
