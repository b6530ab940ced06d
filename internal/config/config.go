// Package config binds the server settings to flags and HANGMAN_* env vars.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "HANGMAN"

type Config struct {
	Bind              string
	Port              int
	DatabaseURL       string
	DirectoryFile     string
	RequireFriends    bool
	InviteTTL         time.Duration
	SessionIdle       time.Duration
	FinishedLinger    time.Duration
	SweepInterval     time.Duration
	AcceptedRetention time.Duration
	CORSOrigins       []string
	Verbose           bool
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"invite-ttl", c.InviteTTL},
		{"session-idle-timeout", c.SessionIdle},
		{"finished-session-linger", c.FinishedLinger},
		{"sweep-interval", c.SweepInterval},
		{"accepted-retention", c.AcceptedRetention},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("--%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.RequireFriends && c.DirectoryFile == "" {
		return errors.New("--require-friends needs --directory-file")
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// LoadDotEnv reads path into the environment if it exists. Variables
// already set win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// NewCommand returns the root command. run receives cfg once flags and
// environment are resolved and validated.
func NewCommand(cfg *Config, version string, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "hangman-server",
		Short:         "Realtime two-player hangman: invites, sessions and push channels.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: HANGMAN_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: HANGMAN_PORT)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres dsn, in-memory stores when empty (env: HANGMAN_DATABASE_URL)")
	fs.StringVar(&cfg.DirectoryFile, "directory-file", "", "json file of user profiles and friends (env: HANGMAN_DIRECTORY_FILE)")
	fs.BoolVar(&cfg.RequireFriends, "require-friends", false, "only allow invites between friends (env: HANGMAN_REQUIRE_FRIENDS)")
	fs.DurationVar(&cfg.InviteTTL, "invite-ttl", 5*time.Minute, "time before a pending invite expires (env: HANGMAN_INVITE_TTL)")
	fs.DurationVar(&cfg.SessionIdle, "session-idle-timeout", 30*time.Minute, "time before an idle game session is archived (env: HANGMAN_SESSION_IDLE_TIMEOUT)")
	fs.DurationVar(&cfg.FinishedLinger, "finished-session-linger", 5*time.Minute, "time a finished game stays readable (env: HANGMAN_FINISHED_SESSION_LINGER)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 10*time.Minute, "time between invite cleanup sweeps (env: HANGMAN_SWEEP_INTERVAL)")
	fs.DurationVar(&cfg.AcceptedRetention, "accepted-retention", time.Hour, "time resolved invites are kept (env: HANGMAN_ACCEPTED_RETENTION)")
	fs.StringSliceVar(&cfg.CORSOrigins, "cors-origins", []string{"*"}, "allowed CORS origins (env: HANGMAN_CORS_ORIGINS)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "development logging (env: HANGMAN_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, envValue(v, f))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("hangman-server v{{.Version}}\n")

	return cmd
}

// envValue renders a viper value for pflag.Set. Slices come back from the
// environment as a single comma separated string.
func envValue(v *viper.Viper, f *pflag.Flag) string {
	if f.Value.Type() == "stringSlice" {
		return strings.Join(v.GetStringSlice(f.Name), ",")
	}
	return fmt.Sprintf("%v", v.Get(f.Name))
}
