package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Comcast/cordial/client"
	"github.com/Comcast/cordial/config"
	"github.com/Comcast/cordial/gateway"
	"github.com/Comcast/cordial/ratelimit"
	"github.com/Comcast/cordial/script"
	"github.com/Comcast/cordial/sink"
	"github.com/Comcast/cordial/storage/bolt"
	"github.com/Comcast/cordial/timers"
	"github.com/Comcast/cordial/util"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *options) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the Gateway and print events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var out io.Writer = cmd.OutOrStdout()
			if quiet {
				out = nil
			}
			return runBot(ctx, cfg, out)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Don't print events")

	return cmd
}

// printer writes each event as a line of JSON.
func printer(w io.Writer) gateway.Handler {
	if w == nil {
		return nil
	}
	var mu sync.Mutex
	return func(ctx context.Context, e *gateway.Event) {
		js, err := json.Marshal(sink.Message{T: e.Type, S: e.Seq, D: e.Data})
		if err != nil {
			return
		}
		mu.Lock()
		fmt.Fprintf(w, "%s\n", js)
		mu.Unlock()
	}
}

// runBot wires up what the configuration asks for and runs the client
// until ctx is done.
func runBot(ctx context.Context, cfg *config.Config, out io.Writer) error {
	cc := cfg.ClientConfig()
	logger := util.Log
	util.Logf("config %s", util.JS(cfg))

	if cfg.Storage.BoltFile != "" {
		st, err := bolt.NewStorage(cfg.Storage.BoltFile)
		if err != nil {
			return err
		}
		st.Debug = cfg.Debug
		if err = st.Open(ctx); err != nil {
			return fmt.Errorf("opening %s: %w", cfg.Storage.BoltFile, err)
		}
		defer st.Close(context.Background())
		cc.Store = st
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		var sopts []ratelimit.StoreOption
		if cfg.Redis.Prefix != "" {
			sopts = append(sopts, ratelimit.WithPrefix(cfg.Redis.Prefix))
		}
		store, err := ratelimit.NewRedisStore(ctx, rdb, sopts...)
		if err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		cc.LimitStore = store
	}

	handlers := []gateway.Handler{printer(out)}

	if cfg.MQTT.Broker != "" {
		m, err := sink.DialMQTT(ctx, cfg.MQTT.Sink(), nil)
		if err != nil {
			return err
		}
		defer m.Close()
		if cfg.MQTT.Filter != "" {
			if m.Filter, err = script.Compile(cfg.MQTT.Filter, nil); err != nil {
				return fmt.Errorf("mqtt filter: %w", err)
			}
		}
		if m.Pattern, err = cfg.MQTT.CompilePattern(); err != nil {
			return fmt.Errorf("mqtt pattern: %w", err)
		}
		m.Debug = cfg.Debug
		handlers = append(handlers, m.Handle)
	}

	cc.Handler = sink.Chain(handlers...)

	c, err := client.New(cc)
	if err != nil {
		return err
	}

	if 0 < len(cfg.Presence.Schedule) {
		ts := timers.NewTimers(len(cfg.Presence.Schedule)+1, nil)
		tctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go ts.Run(tctx)
		if !ts.Wait(time.Second) {
			return errors.New("timers didn't start")
		}
		for _, s := range cfg.Presence.Schedule {
			if _, err := c.SchedulePresence(tctx, ts, s.Cron, s.Update()); err != nil {
				return err
			}
		}
	}

	logger.Info().Str("name", cfg.Name).Msg("running")
	err = c.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info().Err(err).Msg("stopped")
	return err
}
