package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ggonzalez94/defi-chat/internal/intent"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	GlobalFlags []FlagSchema    `json:"global_flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// IntentSchema describes one chat intent for agents that build messages.
type IntentSchema struct {
	Name               string   `json:"name"`
	AwaitsConfirmation bool     `json:"awaits_confirmation"`
	Enabled            bool     `json:"enabled"`
	Examples           []string `json:"examples,omitempty"`
}

var intentExamples = map[intent.Intent][]string{
	intent.Swap:     {"swap 10 USDC for ETH", "swap $50 of ETH to USDC on base", "approved: swap 1 ETH for USDC"},
	intent.Bridge:   {"bridge 0.1 ETH to base", "bridge $100 of USDC from arbitrum to optimism"},
	intent.Transfer: {"send 5 USDC to 0x...", "send $20 worth of ETH to 0x..."},
	intent.Balance:  {"check my USDC balance on scroll", "balance"},
	intent.DCA:      {"DCA $50 into ETH weekly", "dca 100 USDC into WBTC every 2 weeks"},
	intent.Price:    {"price of ETH", "how much is $PEPE worth?"},
	intent.Confirm:  {"yes", "confirm"},
	intent.Cancel:   {"no", "cancel"},
	intent.Help:     {"help"},
}

// Intents lists every intent in classification order. enabled reports
// whether the deployment allows it; nil means all are enabled.
func Intents(enabled func(intent.Intent) bool) []IntentSchema {
	all := intent.All()
	out := make([]IntentSchema, 0, len(all))
	for _, in := range all {
		item := IntentSchema{
			Name:               string(in),
			AwaitsConfirmation: in.AwaitsConfirmation(),
			Enabled:            enabled == nil || enabled(in),
			Examples:           intentExamples[in],
		}
		out = append(out, item)
	}
	return out
}

func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	if strings.TrimSpace(commandPath) != "" {
		for _, p := range strings.Fields(strings.TrimSpace(commandPath)) {
			next := find(cmd, p)
			if next == nil {
				return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
			}
			cmd = next
		}
	}
	s := serialize(cmd)
	s.GlobalFlags = flagsOf(cmd.InheritedFlags())
	return s, nil
}

func find(parent *cobra.Command, name string) *cobra.Command {
	for _, c := range parent.Commands() {
		if c.Name() == name || contains(c.Aliases, name) {
			return c
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   flagsOf(cmd.NonInheritedFlags()),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func flagsOf(set *pflag.FlagSet) []FlagSchema {
	var items []FlagSchema
	set.VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return items
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
