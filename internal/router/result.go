package router

import (
	"context"

	"github.com/ggonzalez94/defi-chat/internal/intent"
)

type ResultKind string

const (
	KindSuccess              ResultKind = "success"
	KindAwaitingConfirmation ResultKind = "awaiting_confirmation"
	KindError                ResultKind = "error"
)

// HandlerResult is what a handler returns. Err is set only for KindError;
// Content is the user-facing reply for the other kinds.
type HandlerResult struct {
	Kind     ResultKind
	Content  string
	Metadata map[string]any
	Err      error
}

func Success(content string, metadata map[string]any) HandlerResult {
	return HandlerResult{Kind: KindSuccess, Content: content, Metadata: metadata}
}

// AwaitConfirmation asks the router to remember the command until the user
// confirms or cancels it.
func AwaitConfirmation(content string, metadata map[string]any) HandlerResult {
	return HandlerResult{Kind: KindAwaitingConfirmation, Content: content, Metadata: metadata}
}

func Failure(err error, metadata map[string]any) HandlerResult {
	return HandlerResult{Kind: KindError, Err: err, Metadata: metadata}
}

func (r HandlerResult) AwaitingConfirmation() bool {
	return r.Kind == KindAwaitingConfirmation
}

func (r HandlerResult) Failed() bool {
	return r.Kind == KindError
}

// MessageContext carries the per-message facts every handler may need.
// Confirmed is true only when the router replays a pending action.
type MessageContext struct {
	UserKey       string
	ChainID       int64
	WalletAddress string
	Confirmed     bool
}

type Handler interface {
	Handle(ctx context.Context, cmd intent.ExtractedCommand, mc MessageContext) HandlerResult
}

type HandlerFunc func(ctx context.Context, cmd intent.ExtractedCommand, mc MessageContext) HandlerResult

func (f HandlerFunc) Handle(ctx context.Context, cmd intent.ExtractedCommand, mc MessageContext) HandlerResult {
	return f(ctx, cmd, mc)
}
