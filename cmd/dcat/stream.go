package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/config"
	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/dogcat"
	"github.com/dogcat/dogcat/internal/stream"
	"github.com/dogcat/dogcat/internal/types"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Print issue changes as JSON lines while they happen",
	Long: `Watch issues.jsonl and print one JSON event per line for every
created, updated, closed, reopened or deleted issue until interrupted.

When file notifications are unavailable the log is polled every
stream.poll-interval (default 1s).`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		interval := time.Second
		if s := config.GetString("stream.poll-interval"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				fatalf("invalid stream.poll-interval %q: %v", s, err)
			}
			interval = d
		}
		by, _ := cmd.Flags().GetString("by")
		if by == "" {
			by = actor
		}

		path := dogcat.IssuesPath(dogcatsDir)
		enc := json.NewEncoder(os.Stdout)
		emitter := stream.NewEmitter(path, by, nil)
		debug.Logf("streaming %s", path)
		err := stream.Watch(rootCtx, emitter, interval, func(e types.Event) error {
			return enc.Encode(e)
		})
		if err != nil {
			fatal(err)
		}
	},
}

func init() {
	streamCmd.Flags().String("by", "", "Attribute events to this actor (default: --actor)")
	rootCmd.AddCommand(streamCmd)
}
