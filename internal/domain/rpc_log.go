package domain

import "time"

// RPCLogState values written around an RPC invocation.
const (
	RPCStatePending = "pending"
	RPCStateSuccess = "success"
)

// RPCLogEntry is an audit row for one RPC invocation.
type RPCLogEntry struct {
	ID        string
	Method    string
	UserID    string
	Data      map[string]any
	State     string
	CreatedAt time.Time
}
