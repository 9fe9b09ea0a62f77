package types

import (
	"time"

	"github.com/google/uuid"
)

// TxAction is the kind of transaction recorded in the local transaction log.
type TxAction string

const (
	TxActionVote TxAction = "vote"
	TxActionSync TxAction = "sync"
	TxActionPoke TxAction = "poke"
)

// TxLogEntry is a local record of a submitted transaction.
type TxLogEntry struct {
	ID        uuid.UUID              `json:"id"`
	Account   string                 `json:"account"`
	Network   uint64                 `json:"network"`
	Action    TxAction               `json:"action"`
	Summary   string                 `json:"summary"` // e.g. "Voting on 3 pools"
	TxHash    string                 `json:"tx_hash"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
