package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pimworks/golden-cli/internal/session"
	"github.com/pimworks/golden-cli/internal/stream"
)

var watchTypes []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the PIM event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		typeFilter := make(map[string]struct{}, len(watchTypes))
		for _, t := range watchTypes {
			typeFilter[t] = struct{}{}
		}

		unavailable := make(chan struct{})
		client := stream.New(stream.Config{
			URL:            cfg.Stream.URL,
			Tokens:         session.StaticTokenSource(cfg.API.Token),
			MaxAttempts:    cfg.Stream.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Stream.InitialBackoffSecs) * time.Second,
			MaxBackoff:     time.Duration(cfg.Stream.MaxBackoffSecs) * time.Second,
			OnStatus: func(s stream.Status) {
				fmt.Fprintf(os.Stderr, "[%s]\n", s)
				if s == stream.StatusUnavailable {
					close(unavailable)
				}
			},
			OnEvent: func(evt stream.Event) {
				if len(typeFilter) > 0 {
					if _, ok := typeFilter[evt.Type]; !ok {
						return
					}
				}
				fmt.Printf("%s %s\n", evt.Type, evt.Data)
			},
		})

		if err := client.Start(ctx); err != nil {
			return err
		}
		defer client.Close()

		select {
		case <-ctx.Done():
			return nil
		case <-unavailable:
			return client.LastErr()
		}
	},
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchTypes, "type", nil, "only print events of these types")
	rootCmd.AddCommand(watchCmd)
}
