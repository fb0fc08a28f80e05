package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-chat/internal/cache"
	"github.com/ggonzalez94/defi-chat/internal/config"
	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/model"
	"github.com/ggonzalez94/defi-chat/internal/out"
	"github.com/ggonzalez94/defi-chat/internal/pending"
	"github.com/ggonzalez94/defi-chat/internal/policy"
	"github.com/ggonzalez94/defi-chat/internal/resolve"
	"github.com/ggonzalez94/defi-chat/internal/router"
	"github.com/ggonzalez94/defi-chat/internal/version"
)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithIO(os.Stdin, os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return NewRunnerWithIO(os.Stdin, stdout, stderr)
}

func NewRunnerWithIO(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner       *Runner
	flags        config.GlobalFlags
	settings     config.Settings
	logger       *slog.Logger
	root         *cobra.Command
	lastCommand  string
	lastWarnings []string

	providers  *providerSet
	tokenCache *cache.Store
	stateStore *cache.Store
	tokens     *resolve.TokenResolver
	prices     *resolve.PriceResolver
	pending    *pending.Store
	service    *router.Service
}

// renderedError is returned by commands that already wrote their failure
// envelope; Run only maps it to an exit code.
type renderedError struct {
	err error
}

func (e *renderedError) Error() string { return e.err.Error() }
func (e *renderedError) Unwrap() error { return e.err }

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	defer state.close()
	if err == nil {
		return 0
	}
	var rendered *renderedError
	if errors.As(err, &rendered) {
		return clierr.ExitCode(rendered.err)
	}
	err = normalizeRunError(err)
	state.renderError("", err, state.lastWarnings)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Chat-style DeFi command interpreter",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())

			if err := policy.ValidateAllowlist(settings.EnableIntents); err != nil {
				return err
			}
			logger, err := newLogger(s.runner.stderr, settings)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.logger = logger
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableIntents, "enable-intents", "", "Allowlist intents (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Use an in-memory token and price cache")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(s.newMessageCommand())
	cmd.AddCommand(s.newChatCommand())
	cmd.AddCommand(s.newClassifyCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newPriceCommand())
	cmd.AddCommand(s.newPendingCommand())
	cmd.AddCommand(s.newIntentsCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// newLogger writes to stderr so stdout stays a clean envelope stream.
func newLogger(w io.Writer, settings config.Settings) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if settings.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (s *runtimeState) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (s *runtimeState) close() {
	if s.tokenCache != nil {
		_ = s.tokenCache.Close()
	}
	if s.stateStore != nil {
		_ = s.stateStore.Close()
	}
}

func (s *runtimeState) envelopeMeta(commandPath string) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
		Cache:     s.cacheStatus(),
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: append(append([]string(nil), s.lastWarnings...), warnings...),
		Meta:     s.envelopeMeta(commandPath),
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

// emitReply writes a chat reply. Failed replies are still the product of the
// command, so they go to stdout with success=false and the handler's code.
func (s *runtimeState) emitReply(commandPath string, resp router.Response) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  resp.Error == nil,
		Data:     resp,
		Error:    resp.Error,
		Warnings: s.lastWarnings,
		Meta:     s.envelopeMeta(commandPath),
	}
	if err := out.Render(s.runner.stdout, env, s.settings); err != nil {
		return err
	}
	if resp.Err != nil {
		return &renderedError{err: resp.Err}
	}
	return nil
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.CodeOf(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    clierr.TypeName(code),
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *runtimeState) cacheStatus() model.CacheStatus {
	switch {
	case s.tokenCache != nil:
		return model.CacheStatus{Status: "sqlite"}
	case s.tokens != nil:
		return model.CacheStatus{Status: "memory"}
	default:
		return cacheMetaBypass()
	}
}

func (s *runtimeState) warn(msg string) {
	s.lastWarnings = append(s.lastWarnings, msg)
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
