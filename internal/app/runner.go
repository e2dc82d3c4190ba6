package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ggonzalez94/swap-cli/internal/cache"
	"github.com/ggonzalez94/swap-cli/internal/config"
	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
	"github.com/ggonzalez94/swap-cli/internal/log"
	"github.com/ggonzalez94/swap-cli/internal/version"
)

type globalFlags struct {
	ConfigPath  string
	ChainID     int64
	RPCURL      string
	Timeout     string
	Retries     int
	NoCache     bool
	JSON        bool
	SlippagePct string
}

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr}
}

type runtimeState struct {
	runner   *Runner
	flags    globalFlags
	settings config.Settings
	logger   log.Logger
	cache    *cache.Store
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	if state.cache != nil {
		_ = state.cache.Close()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintf(r.stderr, "error: %v\n", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Quote and execute token swaps through the router",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			settings, err := config.Load(s.flags.ConfigPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			if err := s.applyFlagOverrides(cmd.Flags(), &settings); err != nil {
				return err
			}
			s.settings = settings

			logger, err := log.NewLogger(settings.LogProduction, settings.LogLevel)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.logger = logger

			if settings.CacheEnabled && !s.flags.NoCache {
				store, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					// A broken cache never blocks quoting; fall through
					// uncached.
					s.logger.Warn("quote cache unavailable: " + err.Error())
				} else {
					s.cache = store
				}
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&s.flags.ConfigPath, "config", "", "path to config file")
	flags.Int64Var(&s.flags.ChainID, "chain-id", 0, "EVM chain id")
	flags.StringVar(&s.flags.RPCURL, "rpc-url", "", "EVM RPC endpoint override")
	flags.StringVar(&s.flags.Timeout, "timeout", "", "per-request timeout (e.g. 10s)")
	flags.IntVar(&s.flags.Retries, "retries", -1, "HTTP retry attempts")
	flags.BoolVar(&s.flags.NoCache, "no-cache", false, "bypass the quote cache")
	flags.BoolVar(&s.flags.JSON, "json", false, "emit JSON output")
	flags.StringVar(&s.flags.SlippagePct, "slippage", "", "fixed slippage tolerance in percent")

	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(newVersionCommand(s.runner.stdout))
	return cmd
}

func (s *runtimeState) applyFlagOverrides(flags *pflag.FlagSet, settings *config.Settings) error {
	if s.flags.ChainID != 0 {
		settings.ChainID = s.flags.ChainID
	}
	if strings.TrimSpace(s.flags.RPCURL) != "" {
		settings.RPCURL = s.flags.RPCURL
	}
	if strings.TrimSpace(s.flags.Timeout) != "" {
		d, err := time.ParseDuration(s.flags.Timeout)
		if err != nil || d <= 0 {
			return clierr.New(clierr.CodeUsage, "--timeout must be a positive duration")
		}
		settings.Timeout = d
	}
	if flags.Changed("retries") {
		if s.flags.Retries < 0 {
			return clierr.New(clierr.CodeUsage, "--retries must be >= 0")
		}
		settings.Retries = s.flags.Retries
	}
	if strings.TrimSpace(s.flags.SlippagePct) != "" {
		settings.SlippageMode = "fixed"
		settings.SlippagePct = s.flags.SlippagePct
	}
	return nil
}

func (s *runtimeState) newHTTPClient() *httpx.Client {
	return httpx.New(s.settings.Timeout, s.settings.Retries)
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(stdout, "%s %s\n", version.CLIName, version.Version)
			return nil
		},
	}
}
