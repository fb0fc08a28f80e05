package router

import (
	"context"
	"log/slog"
	"strings"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/model"
)

// Classifier turns free text into a command.
type Classifier interface {
	Classify(ctx context.Context, text string) intent.ExtractedCommand
}

type Message struct {
	Text          string `json:"text"`
	UserKey       string `json:"user_key"`
	ChainID       int64  `json:"chain_id"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// Response is the reply to a single message. On failure Content holds the
// user-facing text and Error the stable code.
type Response struct {
	Content              string           `json:"content"`
	Metadata             map[string]any   `json:"metadata,omitempty"`
	AwaitingConfirmation bool             `json:"awaiting_confirmation"`
	Error                *model.ErrorBody `json:"error,omitempty"`
	Err                  error            `json:"-"`
}

// Text is the reply as a chat client shows it.
func (r Response) Text() string { return r.Content }

type Service struct {
	classifier     Classifier
	router         *Router
	defaultChainID int64
	log            *slog.Logger
}

func NewService(classifier Classifier, router *Router, defaultChainID int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultChainID <= 0 {
		defaultChainID = 1
	}
	return &Service{classifier: classifier, router: router, defaultChainID: defaultChainID, log: logger}
}

// ProcessMessage classifies one message and dispatches it. It never returns
// a Go error; failures are rendered into the Response.
func (s *Service) ProcessMessage(ctx context.Context, msg Message) Response {
	mc := MessageContext{
		UserKey:       strings.TrimSpace(msg.UserKey),
		ChainID:       msg.ChainID,
		WalletAddress: strings.TrimSpace(msg.WalletAddress),
	}
	if mc.UserKey == "" {
		mc.UserKey = mc.WalletAddress
	}
	if mc.ChainID <= 0 {
		mc.ChainID = s.defaultChainID
	}

	cmd := s.classifier.Classify(ctx, msg.Text)
	s.log.Debug("classified message", "intent", cmd.Intent, "rule", cmd.Rule, "source", cmd.ConfidenceSource)

	res := s.router.Dispatch(ctx, cmd, mc)
	metadata := map[string]any{"intent": string(cmd.Intent)}
	for k, v := range res.Metadata {
		metadata[k] = v
	}

	if res.Failed() {
		err := res.Err
		if err == nil {
			err = clierr.New(clierr.CodeInternal, "handler failed without an error")
		}
		code := clierr.CodeOf(err)
		if code == clierr.CodeInternal {
			s.log.Error("message failed", "intent", cmd.Intent, "error", err)
		} else {
			s.log.Debug("message failed", "intent", cmd.Intent, "code", clierr.TypeName(code), "error", err)
		}
		return Response{
			Content:  clierr.UserMessage(err),
			Metadata: metadata,
			Error: &model.ErrorBody{
				Code:    int(code),
				Type:    clierr.TypeName(code),
				Message: clierr.UserMessage(err),
			},
			Err: err,
		}
	}
	return Response{
		Content:              res.Content,
		Metadata:             metadata,
		AwaitingConfirmation: res.AwaitingConfirmation(),
	}
}
