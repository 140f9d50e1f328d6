// Package message defines the wire format of messages on the block topics.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
)

const (
	TypeBlock    = "chainstate.block"
	BlockVersion = 1
)

var (
	// ErrUnknownType is returned when an envelope does not carry a block.
	ErrUnknownType = errors.New("unknown message type")

	// ErrEmptyBlock is returned for block messages without a block.
	ErrEmptyBlock = errors.New("block message has no block")
)

// Envelope wraps every message payload with its type and version.
type Envelope struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	ID      string          `json:"id,omitempty"`
	TS      string          `json:"ts,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// BlockMessage is the payload of a TypeBlock envelope.
type BlockMessage struct {
	Network chainstate.Network `json:"network"`
	Block   *chainstate.Block  `json:"block"`
}

// Open decodes an envelope without decoding its payload.
func Open(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// EncodeBlock seals b in a TypeBlock envelope. The envelope ID is
// "<chain>-<network>-<number>" so redeliveries of one block share it.
func EncodeBlock(n chainstate.Network, b *chainstate.Block) ([]byte, error) {
	if b == nil {
		return nil, ErrEmptyBlock
	}
	data, err := json.Marshal(BlockMessage{Network: n, Block: b})
	if err != nil {
		return nil, fmt.Errorf("failed to encode block %d: %w", b.Number, err)
	}
	return json.Marshal(Envelope{
		Type:    TypeBlock,
		Version: BlockVersion,
		ID:      fmt.Sprintf("%s-%d", n, b.Number),
		TS:      time.Now().UTC().Format(time.RFC3339),
		Data:    data,
	})
}

// DecodeBlock opens data and decodes its block payload.
func DecodeBlock(data []byte) (*BlockMessage, error) {
	env, err := Open(data)
	if err != nil {
		return nil, err
	}
	if env.Type != TypeBlock {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if env.Version != BlockVersion {
		return nil, fmt.Errorf("unsupported %s version %d", env.Type, env.Version)
	}

	var msg BlockMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode block message: %w", err)
	}
	if msg.Block == nil {
		return nil, ErrEmptyBlock
	}
	return &msg, nil
}
