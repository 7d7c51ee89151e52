// Command riskctl runs the risk engine offline against a local Badger store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	dbPath     string
	tenant     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "riskctl",
		Short: "Score transaction batches offline",
		Long: `riskctl runs the transaction risk scoring engine on the local machine.
Baselines, the historical corpus, counterparty profiles and analyses are kept
in a Badger database so that repeated runs learn from earlier ones.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "engine config file (YAML); RISK_* variables also apply")
	flags.StringVar(&opts.dbPath, "db", defaultDBPath(), "Badger data directory; empty keeps state in memory")
	flags.StringVar(&opts.tenant, "tenant", localTenant.String(), "tenant id analyses are stored under")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(analyzeCmd(opts))
	cmd.AddCommand(showCmd(opts))
	cmd.AddCommand(historyCmd(opts))
	cmd.AddCommand(tokenCmd(opts))

	return cmd
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".riskctl"
	}
	return dir + "/riskctl"
}
