package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
)

func watchCMD(cfgPath *string) *cobra.Command {
	var group string
	var runID string
	var fromStart bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow research progress events from the Redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := runtime.SignalContext(cmd.Context(), "watch", nil)
			defer cancel()

			rdb, err := runtime.OpenRedis(ctx, cfg)
			if err != nil {
				return err
			}
			defer rdb.Close()
			reg, err := streams.NewBaseRegistry()
			if err != nil {
				return err
			}
			stream := cfg.Storage.Redis.Stream
			out := cmd.OutOrStdout()

			show := func(msgs []streams.Message) {
				for _, m := range msgs {
					if runID != "" && m.Envelope.RunID != runID {
						continue
					}
					printEnvelope(out, m.Envelope)
				}
			}

			if group != "" {
				if err := streams.EnsureGroup(ctx, rdb, stream, group); err != nil {
					return err
				}
				host, _ := os.Hostname()
				consumer := streams.NewConsumer(rdb, reg, group, fmt.Sprintf("%s-%d", host, os.Getpid()))
				for ctx.Err() == nil {
					msgs, err := consumer.Read(ctx, stream, streams.WithBlock(2*time.Second), streams.WithCount(50))
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
					show(msgs)
					ids := make([]string, 0, len(msgs))
					for _, m := range msgs {
						ids = append(ids, m.ID)
					}
					if err := consumer.Ack(ctx, stream, ids...); err != nil {
						return err
					}
				}
				return nil
			}

			last := "$"
			if fromStart {
				last = "0"
			}
			for ctx.Err() == nil {
				msgs, next, err := streams.Tail(ctx, rdb, reg, stream, last, 2*time.Second, 50)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				last = next
				show(msgs)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "read as a consumer group member and acknowledge entries")
	cmd.Flags().StringVar(&runID, "run", "", "only show events for this run id")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay the stream from the beginning")
	return cmd
}

func printEnvelope(w io.Writer, env streams.Envelope) {
	ts := env.OccurredAt.Local().Format("15:04:05")
	switch env.EventType {
	case streams.EventStage:
		ev, err := streams.DecodeEvent(env)
		if err != nil {
			fmt.Fprintf(w, "%s %s undecodable: %v\n", ts, env.RunID, err)
			return
		}
		line := fmt.Sprintf("%s %s %-12s %-9s %s", ts, short(ev.RunID), ev.Stage.Label(), ev.Status, ev.Message)
		if ev.Status != research.StatusStarted && ev.Took > 0 {
			line += fmt.Sprintf(" (%s)", ev.Took.Round(time.Millisecond))
		}
		fmt.Fprintln(w, line)
	case streams.EventScheduled:
		var p struct {
			Schedule string `json:"schedule"`
			Query    string `json:"query"`
		}
		if err := env.Decode(&p); err == nil {
			fmt.Fprintf(w, "%s %s scheduled  %s: %s\n", ts, short(env.RunID), p.Schedule, p.Query)
		}
	default:
		fmt.Fprintf(w, "%s %s %s\n", ts, env.RunID, env.EventType)
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
