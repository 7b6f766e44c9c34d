package main

import (
	"os"
	"path/filepath"

	"github.com/Comcast/cordial/config"
	"github.com/Comcast/cordial/util"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	configFile string
	token      string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "cordial",
		Short:         "A chat-platform bot: Gateway session plus governed REST",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.verbose {
				util.Logging = true
				util.Log = util.Log.Level(zerolog.DebugLevel)
			} else {
				util.Log = util.Log.Level(zerolog.InfoLevel)
			}
		},
	}

	fs := rootCmd.PersistentFlags()
	fs.StringVarP(&opts.configFile, "config", "c", "", "YAML or TOML configuration file")
	fs.StringVar(&opts.token, "token", "", "Bot token (prefer DISCORD_TOKEN)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(opts),
		newGetCmd(opts),
		newPresenceCmd(opts),
	)

	return rootCmd
}

// load reads the configuration file, if any, and applies the
// environment, flags and defaults.
func (o *options) load() (*config.Config, error) {
	cfg := &config.Config{}
	if o.configFile != "" {
		bs, err := os.ReadFile(o.configFile)
		if err != nil {
			return nil, err
		}
		if cfg, err = config.Parse(bs, filepath.Ext(o.configFile)); err != nil {
			return nil, err
		}
	}
	cfg.Env(os.LookupEnv)
	if o.token != "" {
		cfg.Token = o.token
	}
	if o.verbose {
		cfg.Debug = true
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
