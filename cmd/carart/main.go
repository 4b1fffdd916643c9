// Command carart serves the studio API and offers a few offline helpers
// around the style ranking tables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:           "carart",
		Short:         "Car photo to artwork studio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file (yaml, toml or json)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mirrorWorkerCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(checkPrioritiesCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
