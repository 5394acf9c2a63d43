package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/capiscio/pledge-core/pkg/journal"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	watchRedis     string
	watchNamespace string
	watchReplay    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream ledger events from a redis journal",
	Long: `Stream ledger events appended to a redis-backed journal as JSON lines.

With --replay the existing history is printed first. Live delivery is
at-most-once; entries appended while the watcher is disconnected are only
visible through --replay.`,
	Example: `  pledge watch --redis localhost:6379 --namespace default --replay`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		j, err := journal.DialRedis(ctx, &redis.Options{Addr: watchRedis}, watchNamespace)
		if err != nil {
			return err
		}
		defer j.Close()

		return watchJournal(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), j, watchReplay)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchRedis, "redis", "localhost:6379", "Redis address (host:port)")
	watchCmd.Flags().StringVar(&watchNamespace, "namespace", "default", "Journal namespace")
	watchCmd.Flags().BoolVar(&watchReplay, "replay", false, "Print existing history before streaming")
}

// watchJournal writes one JSON line per entry until ctx is done. The
// subscription is opened before replay so nothing falls between the two;
// entries already printed by replay are skipped on the live stream.
func watchJournal(ctx context.Context, out, errOut io.Writer, j *journal.Redis, replay bool) error {
	sub, err := j.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	enc := json.NewEncoder(out)
	var last uint64
	if replay {
		err := j.Replay(ctx, func(e journal.Entry) error {
			last = e.Seq
			return enc.Encode(e)
		})
		if err != nil {
			return err
		}
	}

	events, errs := sub.Events(), sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Seq <= last {
				continue
			}
			last = e.Seq
			if err := enc.Encode(e); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(errOut, "⚠️  %v\n", err)
		}
	}
}
