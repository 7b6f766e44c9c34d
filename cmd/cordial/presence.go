package main

import (
	"context"
	"time"

	"github.com/Comcast/cordial/client"
	"github.com/Comcast/cordial/gateway"

	"github.com/spf13/cobra"
)

func newPresenceCmd(opts *options) *cobra.Command {
	var (
		status       string
		activity     string
		activityType int
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Connect, set the bot's presence, and disconnect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			u := client.PresenceUpdate{Status: status}
			if activity != "" {
				u.Activities = []client.Activity{{
					Name: activity,
					Type: client.ActivityType(activityType),
				}}
			} else if cmd.Flags().Changed("activity") {
				u.Activities = client.Clear
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return setPresence(ctx, cfg.ClientConfig(), u)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&status, "status", client.StatusOnline, "online, idle, dnd or invisible")
	fs.StringVar(&activity, "activity", "", "Activity name (empty clears)")
	fs.IntVar(&activityType, "type", int(client.ActivityPlaying), "Activity type")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")

	return cmd
}

// setPresence connects, sends the update once the session is up, and
// closes the session.
func setPresence(ctx context.Context, cc client.Config, u client.PresenceUpdate) error {
	connected := make(chan struct{}, 1)
	cc.Session.OnStateChange = func(from, to gateway.State) {
		if to == gateway.Connected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	}

	c, err := client.New(cc)
	if err != nil {
		return err
	}

	errs := make(chan error, 1)
	go func() {
		errs <- c.Run(ctx)
	}()

	select {
	case err := <-errs:
		return err
	case <-connected:
	}

	err = c.UpdatePresence(ctx, u)
	c.Close()
	if rerr := <-errs; err == nil {
		err = rerr
	}
	return err
}
