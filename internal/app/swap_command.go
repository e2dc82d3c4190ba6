package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/invalidate"
	"github.com/ggonzalez94/swap-cli/internal/permit"
	"github.com/ggonzalez94/swap-cli/internal/registry"
	"github.com/ggonzalez94/swap-cli/internal/store"
	"github.com/ggonzalez94/swap-cli/internal/swap"
	"github.com/ggonzalez94/swap-cli/internal/wallet"
)

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var flags quoteFlags
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute a swap end to end: allowance, permit, build, submit, confirm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runSwap(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.From, "from", "", "input token symbol")
	cmd.Flags().StringVar(&flags.To, "to", "", "output token symbol")
	cmd.Flags().StringVar(&flags.Amount, "amount", "", "decimal amount of the fixed side")
	cmd.Flags().BoolVar(&flags.ExactOut, "exact-out", false, "fix the output amount instead of the input")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) runSwap(ctx context.Context, flags quoteFlags) error {
	if s.settings.PermitURL == "" || s.settings.BuildTxURL == "" {
		return clierr.New(clierr.CodeUsage, "permit and build_tx service URLs must be configured for swapping")
	}

	tradeModel, fetcher, aggregator, input, err := s.buildTrade(flags)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	signer, err := wallet.NewLocalSignerFromEnv()
	if err != nil {
		return clierr.Wrap(clierr.CodeSigner, "load signing key", err)
	}
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.ChainID)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	chain, err := wallet.Dial(ctx, rpcURL, wallet.DefaultSubmitOptions())
	if err != nil {
		return err
	}
	defer chain.Close()

	httpClient := s.newHTTPClient()
	permits := permit.NewService(httpClient, s.settings.PermitURL)
	builder := swap.NewBuildService(httpClient, s.settings.BuildTxURL)

	var history swap.HistoryStore
	historyStore, err := store.Open(s.settings.HistoryPath, s.settings.HistoryLockPath)
	if err != nil {
		s.logger.Warn("swap history unavailable: " + err.Error())
	} else {
		history = historyStore
		defer historyStore.Close()
	}

	var invalidator swap.Invalidator
	if s.settings.InvalidateURL != "" {
		invalidator = invalidate.New(httpClient, s.settings.InvalidateURL)
	}

	machine := swap.NewMachine(swap.Config{
		Trade:       tradeModel,
		Chain:       chain,
		Signer:      signer,
		Permits:     permits,
		Builder:     builder,
		History:     history,
		Invalidator: invalidator,
		Logger:      s.logger,
		OnNotice: func(n swap.Notice) {
			fmt.Fprintf(s.runner.stdout, "[%s] %s\n", n.Level, n.Message)
		},
		ChainID: s.settings.ChainID,
		Network: s.settings.Network,
	})

	// Resolve the trade before execution begins.
	fetcher.SetInput(input)
	aggregator.Recompute(ctx, input.FromToken, input.ToToken, input.ChainID)
	if _, err := fetcher.Refresh(ctx, false); err != nil {
		return err
	}
	tradeModel.RefreshAutoSlippage(ctx)

	if err := machine.Run(ctx); err != nil {
		return err
	}

	if info := machine.TxInfo(); info != nil {
		fmt.Fprintf(s.runner.stdout, "swap confirmed: %s\n", info.TxHash)
		if info.ExplorerURL != "" {
			fmt.Fprintf(s.runner.stdout, "explorer:       %s\n", info.ExplorerURL)
		}
		fmt.Fprintf(s.runner.stdout, "traded:         %s %s -> %s %s\n", info.FromAmount, info.FromSymbol, info.ToAmount, info.ToSymbol)
	}
	return nil
}
