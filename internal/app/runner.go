// Package app is the cobra harness around the agent: it loads configuration,
// assembles the wallet, extractor, and aggregator router, and exposes each
// action both as a dedicated subcommand and through the free-form agent
// command.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hyphalabs/evm-agent/internal/actions"
	"github.com/hyphalabs/evm-agent/internal/agent"
	"github.com/hyphalabs/evm-agent/internal/aggregator/bebop"
	"github.com/hyphalabs/evm-agent/internal/aggregator/lifi"
	"github.com/hyphalabs/evm-agent/internal/cache"
	"github.com/hyphalabs/evm-agent/internal/config"
	agenterr "github.com/hyphalabs/evm-agent/internal/errors"
	"github.com/hyphalabs/evm-agent/internal/execution"
	"github.com/hyphalabs/evm-agent/internal/execution/signer"
	"github.com/hyphalabs/evm-agent/internal/httpx"
	"github.com/hyphalabs/evm-agent/internal/model"
	"github.com/hyphalabs/evm-agent/internal/out"
	"github.com/hyphalabs/evm-agent/internal/params"
	"github.com/hyphalabs/evm-agent/internal/schema"
	"github.com/hyphalabs/evm-agent/internal/version"
	"github.com/hyphalabs/evm-agent/internal/wallet"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	paramsJSON  string
	settings    config.Settings
	cache       *cache.Store
	journal     *execution.Journal
	wallet      *wallet.Wallet
	deps        actions.Deps
	runtime     *agent.Runtime
	root        *cobra.Command
	lastCommand string

	// Injected by tests to bypass real key material and RPC endpoints.
	newSigner func(ctx context.Context, settings config.Settings) (signer.Signer, error)
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, newSigner: buildSigner}
	return state.run(args)
}

func (s *runtimeState) run(args []string) int {
	root := s.newRootCommand()
	s.root = root
	root.SetArgs(args)
	root.SetOut(s.runner.stdout)
	root.SetErr(s.runner.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	s.closeStores()
	if err == nil {
		return 0
	}
	s.renderError("", err)
	return agenterr.ExitCode(err)
}

func (s *runtimeState) closeStores() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Conversational EVM agent: transfers, swaps, bridges, governance",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return agenterr.Wrap(agenterr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if !needsWallet(path) {
				return nil
			}
			return s.initAgent(cmd.Context(), path)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return agenterr.Wrap(agenterr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the persisted balance cache")
	cmd.PersistentFlags().StringVar(&s.flags.Chain, "chain", "", "Default chain name")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC endpoint override for the default chain")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.paramsJSON, "params", "", "Action parameters as a JSON object, bypassing language extraction")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newBridgeCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newGovCommand())
	cmd.AddCommand(s.newPortfolioCommand())
	cmd.AddCommand(s.newJournalCommand())
	cmd.AddCommand(s.newAgentCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// initAgent builds the wallet, extractor, and router once per invocation.
func (s *runtimeState) initAgent(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.wallet != nil {
		return nil
	}

	txSigner, err := s.newSigner(ctx, s.settings)
	if err != nil {
		return err
	}

	if s.settings.CacheEnabled && s.cache == nil {
		store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
		if err != nil {
			return agenterr.Wrap(agenterr.CodeInternal, "open cache", err)
		}
		s.cache = store
	}
	if s.settings.JournalEnabled && s.journal == nil {
		journal, err := execution.OpenJournal(s.settings.JournalPath, s.settings.JournalLockPath)
		if err != nil {
			return agenterr.Wrap(agenterr.CodeInternal, "open journal", err)
		}
		s.journal = journal
	}

	w, err := wallet.New(txSigner, s.settings, s.cache)
	if err != nil {
		return err
	}
	if s.journal != nil {
		w.WithJournal(s.journal)
	}
	s.wallet = w

	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries)
	lifiClient := lifi.New(httpClient)
	if s.settings.LiFiBaseURL != "" {
		lifiClient.WithBaseURL(s.settings.LiFiBaseURL)
	}
	bebopClient := bebop.New(httpClient)
	if s.settings.BebopBaseURL != "" {
		bebopClient.WithBaseURL(s.settings.BebopBaseURL)
	}

	deps := actions.Deps{
		Wallet:   w,
		Router:   actions.NewRouter(lifiClient, bebopClient),
		Settings: s.settings,
	}
	if needsExtractor(path) {
		extractor, err := s.buildExtractor()
		if err != nil {
			return err
		}
		deps.Extractor = extractor
	}
	s.deps = deps
	s.runtime = agent.NewRuntime(agent.NewPlugin(agent.NewWalletProvider(w)), deps)
	return nil
}

func (s *runtimeState) buildExtractor() (params.Extractor, error) {
	if strings.TrimSpace(s.paramsJSON) != "" {
		return literalExtractor{raw: s.paramsJSON}, nil
	}
	if s.settings.LLMAPIKey == "" {
		return nil, agenterr.New(agenterr.CodeConfig,
			"parameter extraction needs an llm api key (EVMAGENT_LLM_API_KEY) or --params")
	}
	llm, err := params.NewLLM(params.LLMConfig{
		BaseURL: s.settings.LLMBaseURL,
		APIKey:  s.settings.LLMAPIKey,
		Model:   s.settings.LLMModel,
		Timeout: s.settings.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return llm, nil
}

func buildSigner(ctx context.Context, settings config.Settings) (signer.Signer, error) {
	if settings.KeySource == signer.KeySourceTEE {
		return signer.NewTEESigner(ctx, signer.TEEConfig{
			Endpoint: settings.TEEEndpoint,
			Salt:     settings.TEESalt,
			AgentID:  settings.AgentID,
			Timeout:  settings.Timeout,
		})
	}
	return signer.NewLocalSignerFromEnv(settings.KeySource)
}

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
			data, err := schema.Describe(s.root, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data)
		},
	}
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Wallet address, current chain, and native balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.wallet.Status(ctx))
		},
	}
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List registered chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.wallet.Chains())
		},
	}
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the plugin's actions and example phrasings",
		RunE: func(cmd *cobra.Command, args []string) error {
			plugin := agent.Plugin{Name: "evm", Actions: actions.All()}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plugin.ActionInfos())
		},
	}
}

func (s *runtimeState) newAgentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agent <message>",
		Short: "Route a free-form message to the matching action",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			reply, err := s.runtime.HandleMessage(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), replyPayload{
				Action: reply.Action,
				Text:   reply.Text,
				Data:   reply.Data,
				Tx:     reply.Tx,
			})
		},
	}
}

// replyPayload is the envelope data for every action-shaped command.
type replyPayload struct {
	Action string                   `json:"action"`
	Text   string                   `json:"text"`
	Data   any                      `json:"data,omitempty"`
	Tx     *model.TransactionRecord `json:"tx,omitempty"`
}

// runAction invokes one named action handler with the command's message.
func (s *runtimeState) runAction(cmd *cobra.Command, action actions.Action, args []string) error {
	message := strings.Join(args, " ")
	if strings.TrimSpace(message) == "" {
		return agenterr.New(agenterr.CodeUsage, "describe the request, e.g. "+firstExample(action))
	}
	ctx, cancel := s.commandContext(cmd)
	defer cancel()
	result, err := action.Handler(ctx, s.deps, message)
	if err != nil {
		// Name the action in the message so a scripted caller can tell which
		// operation failed without parsing the command path.
		return agenterr.WithPrefix(action.Name+" failed", err)
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), replyPayload{
		Action: action.Name,
		Text:   result.Text,
		Data:   result.Data,
		Tx:     result.Tx,
	})
}

func firstExample(action actions.Action) string {
	if len(action.Examples) > 0 {
		return fmt.Sprintf("%q", action.Examples[0])
	}
	return "a natural-language request"
}

// commandContext bounds a command run. Submission commands wait on receipts,
// so the window is the per-step timeout plus the provider timeout rather than
// the bare HTTP timeout.
func (s *runtimeState) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	window := s.settings.Timeout + execution.DefaultOptions().StepTimeout
	return context.WithTimeout(parent, window)
}

func (s *runtimeState) emitSuccess(commandPath string, data any) error {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Error:   nil,
		Meta: model.EnvelopeMeta{
			RequestID: uuid.NewString(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := agenterr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if typed, ok := agenterr.As(err); ok {
		message = typed.Error()
		typ = errorType(typed.Code)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: uuid.NewString(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func errorType(code agenterr.Code) string {
	switch code {
	case agenterr.CodeUsage:
		return "usage_error"
	case agenterr.CodeConfig:
		return "config_error"
	case agenterr.CodeAuth:
		return "auth_error"
	case agenterr.CodeRateLimited:
		return "rate_limited"
	case agenterr.CodeUnavailable:
		return "provider_unavailable"
	case agenterr.CodeUnsupported:
		return "unsupported"
	case agenterr.CodeNoRoute:
		return "no_route"
	case agenterr.CodeReverted:
		return "reverted"
	case agenterr.CodeSigner:
		return "signer_error"
	case agenterr.CodeTimeout:
		return "timeout"
	case agenterr.CodeBlocked:
		return "command_blocked"
	default:
		return "internal_error"
	}
}

// needsWallet reports whether the command requires signer, wallet, and store
// setup. Purely informational commands stay usable without key material.
func needsWallet(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "actions", "schema":
		return false
	default:
		return true
	}
}

// needsExtractor reports whether the command turns natural language into
// structured parameters.
func needsExtractor(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "status", "chains", "journal", "portfolio", "gov state":
		return false
	default:
		return true
	}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := agenterr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return agenterr.Wrap(agenterr.CodeUsage, "invalid command input", err)
	}
	return agenterr.Wrap(agenterr.CodeInternal, "execute command", err)
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

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}
