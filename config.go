package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind    string
	port    int
	prefix  string
	profile bool
	tlsCert string
	tlsKey  string
	verbose bool
	version bool

	triviaInterval int
	triviaDuration time.Duration
	triviaWarmup   time.Duration
	historyLimit   int
	welcomeHistory int
	botSkipChance  float64
	botDelayMin    time.Duration
	botDelayMax    time.Duration
	reapGrace      time.Duration
	ollamaURL      string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.triviaInterval < 1 {
		return fmt.Errorf("invalid trivia interval (must be at least 1): %d", c.triviaInterval)
	}
	if c.historyLimit < 1 {
		return fmt.Errorf("invalid history limit (must be at least 1): %d", c.historyLimit)
	}
	if c.botSkipChance < 0 || c.botSkipChance > 1 {
		return fmt.Errorf("invalid bot skip chance (must be between 0-1 inclusive): %f", c.botSkipChance)
	}
	if c.botDelayMin < 0 || c.botDelayMax < c.botDelayMin {
		return errors.New("bot reply delay range must satisfy 0 <= min <= max")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CHATAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "ai-chat-api",
		Short:         "A real-time lobby chat backend with trivia rounds and AI bot companions.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: CHATAPI_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CHATAPI_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CHATAPI_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: CHATAPI_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CHATAPI_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CHATAPI_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CHATAPI_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: CHATAPI_VERSION)")

	fs.IntVar(&cfg.triviaInterval, "trivia-interval", 8, "human messages between trivia rounds (env: CHATAPI_TRIVIA_INTERVAL)")
	fs.DurationVar(&cfg.triviaDuration, "trivia-duration", 30*time.Second, "time players have to answer a trivia question (env: CHATAPI_TRIVIA_DURATION)")
	fs.DurationVar(&cfg.triviaWarmup, "trivia-warmup", 2*time.Second, "pause between trivia announcement and question (env: CHATAPI_TRIVIA_WARMUP)")
	fs.IntVar(&cfg.historyLimit, "history-limit", 1000, "messages retained per lobby before eviction (env: CHATAPI_HISTORY_LIMIT)")
	fs.IntVar(&cfg.welcomeHistory, "welcome-history", 20, "messages replayed to a newly connected client (env: CHATAPI_WELCOME_HISTORY)")
	fs.Float64Var(&cfg.botSkipChance, "bot-skip-chance", 0.3, "probability a bot ignores a human message (env: CHATAPI_BOT_SKIP_CHANCE)")
	fs.DurationVar(&cfg.botDelayMin, "bot-delay-min", 2*time.Second, "minimum bot thinking time before replying (env: CHATAPI_BOT_DELAY_MIN)")
	fs.DurationVar(&cfg.botDelayMax, "bot-delay-max", 4*time.Second, "maximum bot thinking time before replying (env: CHATAPI_BOT_DELAY_MAX)")
	fs.DurationVar(&cfg.reapGrace, "reap-grace", 10*time.Minute, "time before an empty lobby is purged (env: CHATAPI_REAP_GRACE)")
	fs.StringVar(&cfg.ollamaURL, "ollama-url", "", "base URL of an Ollama server for bot replies, rule-based if unset (env: CHATAPI_OLLAMA_URL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("ai-chat-api v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
