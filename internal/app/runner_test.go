package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

const testWallet = "0x1111111111111111111111111111111111111111"

// isolate points config, cache and state at a temp dir and disables the LLM
// extractor so no test touches the network or the user's files.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	t.Setenv("DEFICHAT_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("DEFICHAT_LLM_API_KEY", "")
	t.Setenv("DEFICHAT_STATE_PATH", filepath.Join(dir, "state.db"))
	t.Setenv("DEFICHAT_STATE_LOCK_PATH", filepath.Join(dir, "state.lock"))
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr).Run(args)
	return code, stdout.String(), stderr.String()
}

func decode(t *testing.T, raw string, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, raw)
	}
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("defichat pending list"); got != "pending list" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestRunnerProvidersList(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "providers", "list", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var out []map[string]any
	decode(t, stdout, &out)
	names := map[string]bool{}
	for _, item := range out {
		names[item["name"].(string)] = true
	}
	for _, want := range []string{"coingecko", "dexscreener", "defillama", "onchain", "1inch", "lifi", "across", "taikoswap", "llm"} {
		if !names[want] {
			t.Fatalf("missing provider %s in %v", want, names)
		}
	}
}

func TestRunnerClassifyDefaultsUnknownDestination(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "classify", "bridge 0.1 ETH to narnia", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var out struct {
		Intent string `json:"intent"`
		Fields struct {
			ToChain          string `json:"to_chain"`
			ToChainDefaulted bool   `json:"to_chain_defaulted"`
			RequestedToChain string `json:"requested_to_chain"`
		} `json:"fields"`
	}
	decode(t, stdout, &out)
	if out.Intent != "Bridge" || out.Fields.ToChain != "ethereum" || !out.Fields.ToChainDefaulted || out.Fields.RequestedToChain != "narnia" {
		t.Fatalf("unexpected classification: %+v", out)
	}
}

func TestRunnerTransferConfirmFlow(t *testing.T) {
	isolate(t)
	recipient := "0x2222222222222222222222222222222222222222"

	code, stdout, stderr := run(t, "message", "send 5 USDC to "+recipient, "--wallet", testWallet, "--chain", "ethereum", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var first struct {
		Content              string `json:"content"`
		AwaitingConfirmation bool   `json:"awaiting_confirmation"`
	}
	decode(t, stdout, &first)
	if !first.AwaitingConfirmation || !strings.Contains(first.Content, "Send 5 USDC") {
		t.Fatalf("expected confirmation prompt, got %+v", first)
	}

	code, stdout, stderr = run(t, "pending", "list", "--results-only")
	if code != 0 {
		t.Fatalf("pending list failed: %d stderr=%s", code, stderr)
	}
	var actions []map[string]any
	decode(t, stdout, &actions)
	if len(actions) != 1 || actions[0]["user_key"] != testWallet || actions[0]["intent_kind"] != "Transfer" {
		t.Fatalf("unexpected pending actions: %v", actions)
	}

	code, stdout, stderr = run(t, "message", "yes", "--wallet", testWallet, "--chain", "ethereum", "--select", "metadata.transaction", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0 on confirm, got %d stderr=%s", code, stderr)
	}
	var confirmed map[string]struct {
		To   string `json:"to"`
		Data string `json:"data"`
	}
	decode(t, stdout, &confirmed)
	tx := confirmed["metadata.transaction"]
	if !strings.HasPrefix(tx.Data, "0xa9059cbb") || !strings.EqualFold(tx.To, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48") {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	code, stdout, _ = run(t, "pending", "show", "--user", testWallet, "--results-only")
	if code != 0 {
		t.Fatalf("pending show failed: %d", code)
	}
	var view pendingView
	decode(t, stdout, &view)
	if view.Pending {
		t.Fatalf("pending action survived confirmation: %+v", view)
	}
}

func TestRunnerMessageParseErrorExitCode(t *testing.T) {
	isolate(t)
	code, stdout, _ := run(t, "message", "xyzzy plugh", "--user", "alice")
	if code != 20 {
		t.Fatalf("expected exit 20, got %d", code)
	}
	var env struct {
		Success bool `json:"success"`
		Error   struct {
			Type string `json:"type"`
		} `json:"error"`
		Data struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	decode(t, stdout, &env)
	if env.Success || env.Error.Type != "parse_error" || !strings.Contains(env.Data.Content, "swap 10 USDC for ETH") {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestRunnerBlockedIntent(t *testing.T) {
	isolate(t)
	code, stdout, _ := run(t, "message", "price of ETH", "--user", "alice", "--enable-intents", "swap")
	if code != 16 {
		t.Fatalf("expected exit 16, got %d", code)
	}
	var env map[string]any
	decode(t, stdout, &env)
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
	if errBody, _ := env["error"].(map[string]any); errBody["type"] != "intent_blocked" {
		t.Fatalf("unexpected error body: %v", env["error"])
	}
}

func TestRunnerRejectsUnknownAllowlistEntry(t *testing.T) {
	isolate(t)
	code, _, stderr := run(t, "intents", "--enable-intents", "swapz", "--results-only")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	var env map[string]any
	decode(t, stderr, &env)
	if env["success"] != false {
		t.Fatalf("expected error envelope, got %s", stderr)
	}
}

func TestRunnerIntentsReflectAllowlist(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "intents", "--enable-intents", "swap", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var items []struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	decode(t, stdout, &items)
	enabled := map[string]bool{}
	for _, item := range items {
		enabled[item.Name] = item.Enabled
	}
	if !enabled["Swap"] || enabled["Bridge"] || !enabled["Help"] || !enabled["Confirm"] {
		t.Fatalf("unexpected enabled map: %v", enabled)
	}
}

func TestRunnerChatReadsStdin(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	in := strings.NewReader("help\n\nyes\nquit\nhelp\n")
	code := NewRunnerWithIO(in, &stdout, &stderr).Run([]string{"chat", "--user", "bob"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var lines []chatLine
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		var line chatLine
		decode(t, scanner.Text(), &line)
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 replies, got %d: %s", len(lines), stdout.String())
	}
	if !strings.Contains(lines[0].Reply.Content, "Here's what I can do") {
		t.Fatalf("unexpected help reply: %q", lines[0].Reply.Content)
	}
	if lines[1].Input != "yes" || lines[1].Reply.Content != "Nothing pending to confirm." {
		t.Fatalf("unexpected confirm reply: %+v", lines[1])
	}
}

func TestRunnerMessageRequiresIdentity(t *testing.T) {
	isolate(t)
	code, _, _ := run(t, "message", "help")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunnerPendingShowRequiresUser(t *testing.T) {
	isolate(t)
	code, _, _ := run(t, "pending", "show")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunnerSchemaListsCommands(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run(t, "schema", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr)
	}
	var root struct {
		Subcommands []struct {
			Use string `json:"use"`
		} `json:"subcommands"`
	}
	decode(t, stdout, &root)
	found := false
	for _, sub := range root.Subcommands {
		if strings.HasPrefix(sub.Use, "message") {
			found = true
		}
	}
	if !found {
		t.Fatalf("message command missing from schema: %s", stdout)
	}
}
