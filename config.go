package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	listen           string
	httpListen       string
	dataDir          string
	matchWindow      int
	ratingDelta      int
	reaperPeriod     time.Duration
	idleTimeout      time.Duration
	handshakeTimeout time.Duration
	maxGames         int
	debug            bool
}

func (c *Config) validate() error {
	if c.matchWindow < 0 {
		return fmt.Errorf("invalid match window: %d", c.matchWindow)
	}
	if c.ratingDelta < 0 {
		return fmt.Errorf("invalid rating delta: %d", c.ratingDelta)
	}
	if c.maxGames < 1 {
		return fmt.Errorf("invalid max games: %d", c.maxGames)
	}
	if c.reaperPeriod <= 0 || c.idleTimeout <= 0 || c.handshakeTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BATTLESHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "battleship-web",
		Short:         "Multi-user online battleship server with matchmaking, chat and ratings.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.listen, "listen", "l", ":8080", "TCP address to serve the game protocol on (env: BATTLESHIP_LISTEN)")
	fs.StringVar(&cfg.httpListen, "http", "", "optional HTTP address for the WebSocket gateway and health check (env: BATTLESHIP_HTTP)")
	fs.StringVarP(&cfg.dataDir, "data-dir", "d", "./data", "directory for the account file and match history (env: BATTLESHIP_DATA_DIR)")
	fs.IntVar(&cfg.matchWindow, "match-window", 100, "maximum rating difference for queued pairing (env: BATTLESHIP_MATCH_WINDOW)")
	fs.IntVar(&cfg.ratingDelta, "rating-delta", 10, "rating points exchanged per decided game (env: BATTLESHIP_RATING_DELTA)")
	fs.DurationVar(&cfg.reaperPeriod, "reaper-period", 5*time.Second, "how often idle sessions are swept (env: BATTLESHIP_REAPER_PERIOD)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 60*time.Second, "inactivity before a session is dropped (env: BATTLESHIP_IDLE_TIMEOUT)")
	fs.DurationVar(&cfg.handshakeTimeout, "handshake-timeout", 30*time.Second, "MATCH_READY window after pairing (env: BATTLESHIP_HANDSHAKE_TIMEOUT)")
	fs.IntVar(&cfg.maxGames, "max-games", 256, "maximum concurrent games (env: BATTLESHIP_MAX_GAMES)")
	fs.BoolVar(&cfg.debug, "debug", false, "enable debug logging (env: BATTLESHIP_DEBUG)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("battleship-web v{{.Version}}\n")

	return cmd
}
