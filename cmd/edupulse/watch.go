// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/edupulse/edupulse/internal/observability"
	"github.com/edupulse/edupulse/internal/realtime"
	"github.com/edupulse/edupulse/internal/session"
)

// watchConfig holds configuration for the watch command.
type watchConfig struct {
	filter string
	quiet  bool
}

// newWatchCmd creates the watch subcommand.
func newWatchCmd() *cobra.Command {
	cfg := &watchConfig{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail the realtime push channel",
		Long: `Connect to the push channel of the signed-in session and print
events as they arrive. Attendance, marks, downloads, and notification
events each appear with their topic and payload; a glob filter narrows
which topics are shown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.filter, "filter", "*", "glob on topic names, e.g. 'marks:*'")
	cmd.Flags().BoolVar(&cfg.quiet, "quiet", false, "suppress toast lines, print events only")

	return cmd
}

// toastWriter surfaces toast texts on the command's output stream.
type toastWriter struct {
	cmd *cobra.Command
}

func (t toastWriter) Notify(text string) {
	t.cmd.Printf("* %s\n", text)
}

// silentNotifier drops toasts when --quiet is set.
type silentNotifier struct{}

func (silentNotifier) Notify(string) {}

func runWatch(cmd *cobra.Command, cfg *watchConfig) error {
	topicGlob, err := glob.Compile(cfg.filter)
	if err != nil {
		return fmt.Errorf("invalid topic filter %q: %w", cfg.filter, err)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := a.requireAccess(ctx, nil, "/watch"); err != nil {
		return err
	}

	// Optional metrics/health endpoint while the watcher runs.
	if addr := a.cfg.Metrics.Addr; addr != "" {
		obs := observability.NewServer(addr, func() bool {
			return a.store.Snapshot().Status == session.StatusAuthenticated
		})
		errCh, err := obs.Start()
		if err != nil {
			return err
		}
		go func() {
			if serveErr, ok := <-errCh; ok && serveErr != nil {
				slog.Error("observability server failed", "error", serveErr)
				cancel()
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := obs.Stop(stopCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
		slog.Info("observability server started", "addr", obs.Addr())
	}

	var notifier realtime.Notifier = toastWriter{cmd: cmd}
	if cfg.quiet {
		notifier = silentNotifier{}
	}

	bus := realtime.NewBroadcaster()
	bridge := realtime.NewBridge(a.client.BaseURL(), a.cfg.Realtime.Path, a.store, notifier, bus)

	// The bridge follows session transitions. Replay the current state as
	// the first change so it connects immediately.
	updates, unsubscribe := a.store.Subscribe()
	defer unsubscribe()
	changes := make(chan session.Change, 1)
	snap := a.store.Snapshot()
	changes <- session.Change{Status: snap.Status, Generation: snap.Generation}
	go func() {
		defer close(changes)
		for {
			select {
			case change, ok := <-updates:
				if !ok {
					return
				}
				select {
				case changes <- change:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		bridge.Run(ctx, changes)
	}()

	streams := []realtime.Stream{
		realtime.StreamDownloads,
		realtime.StreamAttendance,
		realtime.StreamMarks,
		realtime.StreamNotifications,
	}
	events := make(chan realtime.Event, 64)
	for _, stream := range streams {
		sub := bus.Subscribe(stream)
		go func() {
			for event := range sub {
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}()
		defer bus.Unsubscribe(stream, sub)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.PrintErrf("Watching %s (filter: %s)\n", realtime.Endpoint(a.client.BaseURL(), a.cfg.Realtime.Path), cfg.filter)

	for {
		select {
		case event := <-events:
			if !topicGlob.Match(string(event.Topic)) {
				continue
			}
			cmd.Printf("%s  %-24s %s\n",
				event.ReceivedAt.Format(time.TimeOnly),
				event.Topic,
				string(event.Payload),
			)
		case sig := <-sigChan:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
			<-bridgeDone
			return nil
		case <-ctx.Done():
			<-bridgeDone
			return nil
		}
	}
}
