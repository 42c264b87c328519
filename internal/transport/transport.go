// Package transport wraps the messaging protocol client behind a small
// interface the sweep engine drives. Flood-control responses are
// explicit result values, not errors, so every call site handles them.
package transport

import (
	"context"
	"time"
)

// ChatKind classifies a conversation for retention purposes.
type ChatKind string

const (
	ChatDirect  ChatKind = "direct"
	ChatGroup   ChatKind = "group"
	ChatChannel ChatKind = "channel"
	ChatSelf    ChatKind = "self" // saved messages
)

// Chat is one conversation in the account's dialog list.
type Chat struct {
	ID         int64
	Kind       ChatKind
	Title      string
	AccessHash int64
	// Channel is true when the protocol addresses this chat through the
	// channel namespace (broadcast channels and supergroups), which uses
	// a different delete call than plain chats.
	Channel bool
}

// Message is one fetched message. Read-only once fetched.
type Message struct {
	ID     int
	ChatID int64
	Date   time.Time
	Out    bool   // sent by the account itself
	Pinned bool
	Media  string // "", "photo", "video", "document", "voice", "service", "other"
}

// ChatOffset is an opaque-ish resume position in the dialog list.
type ChatOffset struct {
	Date int `json:"date"`
	ID   int `json:"id"`
}

// Session identifies the authenticated account. The credential blob
// itself lives in the session store; this is only what the engine
// needs for logging and scoping.
type Session struct {
	AccountID int64
	Username  string
}

// DeleteStatus is the explicit outcome variant of a delete call.
type DeleteStatus string

const (
	// DeleteAck confirms the batch is gone. Deleting an already-deleted
	// identifier also acks, which is what makes resume idempotent.
	DeleteAck DeleteStatus = "ack"
	// DeleteRateLimited means the account hit flood control; no delete
	// call may be issued until RetryAfter elapses.
	DeleteRateLimited DeleteStatus = "rate_limited"
	// DeleteDenied means the service permanently refused the batch
	// (no permission, too old to revoke). Never retried.
	DeleteDenied DeleteStatus = "denied"
)

// DeleteResult is the outcome of one delete attempt.
type DeleteResult struct {
	Status     DeleteStatus
	RetryAfter time.Duration // set when Status == DeleteRateLimited
}

// Transport is the protocol surface the engine needs. Implementations
// return errors wrapping errors.ErrTransportDown for connectivity
// failures; callers retry those with capped exponential backoff.
type Transport interface {
	// Authenticate restores or establishes the account session.
	Authenticate(ctx context.Context) (Session, error)

	// ListChats returns one page of the dialog list starting at offset,
	// the offset for the next page, and whether more pages may follow.
	ListChats(ctx context.Context, offset ChatOffset, limit int) ([]Chat, ChatOffset, bool, error)

	// ListMessages returns up to limit messages of chat strictly older
	// than beforeID (0 = newest first), ordered newest to oldest. An
	// empty page means the history is exhausted.
	ListMessages(ctx context.Context, chat Chat, beforeID int, limit int) ([]Message, error)

	// DeleteMessages deletes the given message IDs in chat for all
	// participants. The outcome is an explicit DeleteResult variant.
	DeleteMessages(ctx context.Context, chat Chat, ids []int) (DeleteResult, error)
}
