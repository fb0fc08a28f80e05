package router

import (
	"context"
	"fmt"
	"log/slog"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/pending"
	"github.com/ggonzalez94/defi-chat/internal/policy"
)

const nothingPending = "Nothing pending to confirm."

// PendingStore is the subset of pending.Store the router needs.
type PendingStore interface {
	Put(userKey, rawCommand, intentKind string) error
	Get(userKey string) (pending.Action, bool, error)
	Clear(userKey string) error
}

// Reextractor re-runs a single intent's rules against stored raw text.
type Reextractor interface {
	ExtractAs(in intent.Intent, text string) (intent.ExtractedCommand, bool)
}

type Options struct {
	Handlers  map[intent.Intent]Handler
	Pending   PendingStore
	Extractor Reextractor
	Allowlist []string
	Logger    *slog.Logger
}

// Router dispatches classified commands to handlers. Its only side effects
// are on the pending store: it remembers commands that await confirmation
// and replays them when the user confirms.
type Router struct {
	handlers  map[intent.Intent]Handler
	pending   PendingStore
	extractor Reextractor
	allowlist []string
	log       *slog.Logger
}

func New(opts Options) *Router {
	handlers := make(map[intent.Intent]Handler, len(opts.Handlers))
	for in, h := range opts.Handlers {
		handlers[in] = h
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers:  handlers,
		pending:   opts.Pending,
		extractor: opts.Extractor,
		allowlist: append([]string(nil), opts.Allowlist...),
		log:       logger,
	}
}

func (r *Router) Dispatch(ctx context.Context, cmd intent.ExtractedCommand, mc MessageContext) HandlerResult {
	if cmd.Intent == intent.Confirm {
		return r.confirm(ctx, mc)
	}
	mc.Confirmed = false
	res := r.run(ctx, cmd, mc)
	if res.AwaitingConfirmation() {
		r.remember(mc.UserKey, cmd)
	}
	return res
}

func (r *Router) confirm(ctx context.Context, mc MessageContext) HandlerResult {
	action, ok, err := r.pending.Get(mc.UserKey)
	if err != nil {
		r.log.Warn("pending lookup failed", "user", mc.UserKey, "error", err)
		return Failure(err, nil)
	}
	if !ok {
		return Success(nothingPending, map[string]any{"pending": false})
	}

	kind, valid := intent.Parse(action.IntentKind)
	if !valid || !kind.AwaitsConfirmation() {
		r.log.Warn("discarding pending action with unexpected intent", "user", mc.UserKey, "intent", action.IntentKind)
		r.forget(mc.UserKey)
		return Success(nothingPending, map[string]any{"pending": false})
	}

	cmd, matched := r.extractor.ExtractAs(kind, action.RawCommand)
	if !matched {
		// Hand the raw text to the handler anyway so it reports what is missing.
		cmd = intent.ExtractedCommand{Intent: kind, RawText: action.RawCommand, ConfidenceSource: intent.SourcePattern}
	}

	mc.Confirmed = true
	res := r.run(ctx, cmd, mc)

	// The action is consumed whatever the handler returned.
	r.forget(mc.UserKey)
	if res.AwaitingConfirmation() {
		r.remember(mc.UserKey, cmd)
	}
	return res
}

func (r *Router) run(ctx context.Context, cmd intent.ExtractedCommand, mc MessageContext) HandlerResult {
	if err := policy.CheckIntentAllowed(r.allowlist, cmd.Intent); err != nil {
		return Failure(err, nil)
	}
	h, ok := r.handlers[cmd.Intent]
	if !ok {
		if cmd.Intent == intent.Unknown {
			return Failure(clierr.New(clierr.CodeParse, "could not interpret message"), nil)
		}
		return Failure(clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no handler registered for %s", cmd.Intent)), nil)
	}
	return h.Handle(ctx, cmd, mc)
}

func (r *Router) remember(userKey string, cmd intent.ExtractedCommand) {
	if err := r.pending.Put(userKey, cmd.RawText, string(cmd.Intent)); err != nil {
		r.log.Warn("pending store failed", "user", userKey, "intent", cmd.Intent, "error", err)
	}
}

func (r *Router) forget(userKey string) {
	if err := r.pending.Clear(userKey); err != nil {
		r.log.Warn("pending clear failed", "user", userKey, "error", err)
	}
}
