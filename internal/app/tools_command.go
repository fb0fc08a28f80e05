package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/intent"
	"github.com/ggonzalez94/defi-chat/internal/pending"
	"github.com/ggonzalez94/defi-chat/internal/policy"
	"github.com/ggonzalez94/defi-chat/internal/schema"
	"github.com/ggonzalez94/defi-chat/internal/version"
)

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
}

func (s *runtimeState) newIntentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "intents",
		Short: "List chat intents, example phrasings and whether each is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			allowlist := s.settings.EnableIntents
			data := schema.Intents(func(in intent.Intent) bool {
				return policy.CheckIntentAllowed(allowlist, in) == nil
			})
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List token, price, quote and extractor providers (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := s.ensureProviders()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), set.infos(), nil)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) chainOrDefault(raw string) (id.Chain, error) {
	if strings.TrimSpace(raw) == "" {
		if chain, ok := id.ChainByID(s.settings.DefaultChainID); ok {
			return chain, nil
		}
		return id.ParseChain(fmt.Sprint(s.settings.DefaultChainID))
	}
	return id.ParseChain(raw)
}

func (s *runtimeState) newTokensCommand() *cobra.Command {
	root := &cobra.Command{Use: "tokens", Short: "Token resolution commands"}
	var chainArg string
	resolveCmd := &cobra.Command{
		Use:   "resolve <symbol|alias|$ticker|address>",
		Short: "Resolve a token reference through the lookup cascade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := s.chainOrDefault(chainArg)
			if err != nil {
				return err
			}
			if err := s.ensureResolvers(); err != nil {
				return err
			}
			token := s.tokens.Resolve(cmd.Context(), args[0], chain.ID)
			if !token.Resolved() {
				return clierr.New(clierr.CodeResolutionMiss, fmt.Sprintf("token %s not found on %s", args[0], chain.Name))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), token, token.Warnings)
		},
	}
	resolveCmd.Flags().StringVar(&chainArg, "chain", "", "Chain to resolve on (defaults to the configured chain)")
	root.AddCommand(resolveCmd)
	return root
}

func (s *runtimeState) newPriceCommand() *cobra.Command {
	var chainArg string
	cmd := &cobra.Command{
		Use:   "price <symbol|address>",
		Short: "Look up a USD price through the price cascade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := s.chainOrDefault(chainArg)
			if err != nil {
				return err
			}
			if err := s.ensureResolvers(); err != nil {
				return err
			}
			quote := s.prices.GetPrice(cmd.Context(), args[0], chain.ID)
			if quote.Price == nil {
				return clierr.New(clierr.CodeResolutionMiss, fmt.Sprintf("no price for %s on %s", args[0], chain.Name))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), quote, nil)
		},
	}
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain to price on (defaults to the configured chain)")
	return cmd
}

// pendingView is the pending show/clear payload.
type pendingView struct {
	UserKey string          `json:"user_key"`
	Pending bool            `json:"pending"`
	Action  *pending.Action `json:"action,omitempty"`
	Cleared bool            `json:"cleared,omitempty"`
}

func (s *runtimeState) newPendingCommand() *cobra.Command {
	root := &cobra.Command{Use: "pending", Short: "Inspect and clear pending confirmations"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List live pending actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := s.ensurePending().List()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), actions, nil)
		},
	}

	var showUser string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the pending action for one user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, ok, err := s.ensurePending().Get(showUser)
			if err != nil {
				return err
			}
			view := pendingView{UserKey: pending.NormalizeUserKey(showUser), Pending: ok}
			if ok {
				view.Action = &action
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil)
		},
	}
	show.Flags().StringVar(&showUser, "user", "", "User identity")
	_ = show.MarkFlagRequired("user")

	var clearUser string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the pending action for one user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.ensurePending().Clear(clearUser); err != nil {
				return err
			}
			view := pendingView{UserKey: pending.NormalizeUserKey(clearUser), Cleared: true}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil)
		},
	}
	clearCmd.Flags().StringVar(&clearUser, "user", "", "User identity")
	_ = clearCmd.MarkFlagRequired("user")

	root.AddCommand(list, show, clearCmd)
	return root
}
