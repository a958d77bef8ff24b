package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const flagEpoch = "epoch"

func init() {
	rootCmd.PersistentFlags().Uint64(flagEpoch, 0, "Use this start epoch instead of asking the gateway")
}

var rootCmd = &cobra.Command{
	Use:           "signer",
	Short:         "Multi-factor transaction signing and notarization",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(
		importMnemonicCommand(),
		addLedgerCommand(),
		addEntityCommand(),
		listEntitiesCommand(),
		signTransactionCommand(),
		signSubintentCommand(),
		signAuthCommand(),
		spotCheckCommand(),
		ceremonyLogCommand(),
	)
	// Interrupting a ceremony cancels it; pending device and seed prompts resolve as rejected
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("signer: %v", err)
	}
}
