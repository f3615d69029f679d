// Command bvardemo drives a few bvar reducers from a pool of workers and
// periodically dumps the exposed variables as JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logging.Logger("bvardemo")

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := defaultOptions()
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "bvardemo",
		Short: "Drive bvar reducers from a worker pool and dump them",
		Long: `bvardemo submits simulated requests to a worker pool. Workers update an
adder, a maxer and a latency recorder built by a bvar Provider; windows and
per-second rates over them are exposed next to the instruments and the
whole name table is printed every report period.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.load(cmd, v); err != nil {
				return err
			}
			if err := opts.validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.Duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Duration)
				defer cancel()
			}
			return run(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().SortFlags = true
	cmd.Flags().StringP("config", "c", configPathFromEnv(), "Path to config file")
	opts.addFlags(cmd.Flags())
	return cmd
}
