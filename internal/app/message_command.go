package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/id"
	"github.com/ggonzalez94/defi-chat/internal/router"
)

// messageFlags identify who is talking and on which chain.
type messageFlags struct {
	user   string
	chain  string
	wallet string
}

func (f *messageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "User identity for pending confirmations (defaults to --wallet)")
	cmd.Flags().StringVar(&f.chain, "chain", "", "Chain the message arrives on (name, id or eip155:<id>)")
	cmd.Flags().StringVar(&f.wallet, "wallet", "", "Connected wallet address")
}

func (f *messageFlags) message(text string) (router.Message, error) {
	msg := router.Message{
		Text:          text,
		UserKey:       strings.TrimSpace(f.user),
		WalletAddress: strings.TrimSpace(f.wallet),
	}
	if strings.TrimSpace(f.chain) != "" {
		chain, err := id.ParseChain(f.chain)
		if err != nil {
			return router.Message{}, err
		}
		msg.ChainID = chain.ID
	}
	if msg.WalletAddress != "" && !id.IsAddress(msg.WalletAddress) {
		return router.Message{}, clierr.New(clierr.CodeUsage, "--wallet must be a 0x address")
	}
	if msg.UserKey == "" && msg.WalletAddress == "" {
		return router.Message{}, clierr.New(clierr.CodeUsage, "--user or --wallet is required")
	}
	return msg, nil
}

func (s *runtimeState) newMessageCommand() *cobra.Command {
	var flags messageFlags
	cmd := &cobra.Command{
		Use:   "message <text>",
		Short: "Interpret one chat message and reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := flags.message(strings.Join(args, " "))
			if err != nil {
				return err
			}
			svc, err := s.ensureService()
			if err != nil {
				return err
			}
			resp := svc.ProcessMessage(cmd.Context(), msg)
			return s.emitReply(trimRootPath(cmd.CommandPath()), resp)
		},
	}
	flags.bind(cmd)
	return cmd
}

// chatLine is one reply in chat --json mode.
type chatLine struct {
	Input string          `json:"input"`
	Reply router.Response `json:"reply"`
}

func (s *runtimeState) newChatCommand() *cobra.Command {
	var flags messageFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Read messages from stdin, one per line, and reply to each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := flags.message(""); err != nil {
				return err
			}
			svc, err := s.ensureService()
			if err != nil {
				return err
			}
			w := s.runner.stdout
			enc := json.NewEncoder(w)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}
				msg, _ := flags.message(line)
				resp := svc.ProcessMessage(cmd.Context(), msg)
				if s.settings.OutputMode == "plain" {
					if _, err := fmt.Fprintf(w, "> %s\n%s\n", line, resp.Content); err != nil {
						return err
					}
					continue
				}
				if err := enc.Encode(chatLine{Input: line, Reply: resp}); err != nil {
					return err
				}
			}
			if err := scanner.Err(); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read chat input", err)
			}
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func (s *runtimeState) newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Show how a message is classified without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier, err := s.newClassifier()
			if err != nil {
				return err
			}
			extracted := classifier.Classify(cmd.Context(), strings.Join(args, " "))
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), extracted, nil)
		},
	}
}
