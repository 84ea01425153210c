package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-i2p/go-sam-session/lib/client"
	"github.com/go-i2p/go-sam-session/lib/config"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"

	// Build info
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// flags holds the values of the persistent flags.
type flags struct {
	configPath    string
	sam           string
	nickname      string
	keyFile       string
	strictKeyFile bool
	options       []string
	minVersion    string
	maxVersion    string
	metricsAddr   string
	debug         bool

	// dialer overrides the network dialer; tests point it at a fake router.
	dialer client.Dialer
	getenv func(string) string
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd(&flags{getenv: os.Getenv}).Execute()
}

func newRootCmd(f *flags) *cobra.Command {
	root := &cobra.Command{
		Use:          "sam-session",
		Short:        "Create and hold a SAM STREAM session on an I2P router",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "TOML config file")
	pf.StringVar(&f.sam, "sam", "", "SAM control endpoint (tcp:host:port)")
	pf.StringVarP(&f.nickname, "nickname", "n", "", "session ID (default: generated)")
	pf.StringVarP(&f.keyFile, "keyfile", "k", "", "file to persist the session key in (default: transient)")
	pf.BoolVar(&f.strictKeyFile, "strict-keyfile", false, "fail if the key file exists but cannot be read")
	pf.StringArrayVarP(&f.options, "option", "o", nil, "extra SESSION CREATE option as key=value (repeatable)")
	pf.StringVar(&f.minVersion, "min-version", "", "minimum SAM version for HELLO")
	pf.StringVar(&f.maxVersion, "max-version", "", "maximum SAM version for HELLO")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	pf.BoolVar(&f.debug, "debug", false, "enable debug logging")

	root.AddCommand(createCmd(f), versionCmd())
	return root
}

// loadConfig builds the effective configuration: file, then environment,
// then flags the user actually set.
func (f *flags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	getenv := f.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("sam") {
		cfg.SAMAddr = f.sam
	}
	if changed("nickname") {
		cfg.Nickname = f.nickname
	}
	if changed("keyfile") {
		cfg.KeyFile = f.keyFile
	}
	if changed("strict-keyfile") {
		cfg.StrictKeyFile = f.strictKeyFile
	}
	if changed("min-version") {
		cfg.MinVersion = f.minVersion
	}
	if changed("max-version") {
		cfg.MaxVersion = f.maxVersion
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("debug") {
		cfg.Debug = f.debug
	}

	opts, err := parseOptions(f.options)
	if err != nil {
		return nil, err
	}
	for k, v := range opts {
		cfg.Options[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseOptions splits repeated key=value flags. A later key wins.
func parseOptions(pairs []string) (map[string]string, error) {
	opts := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("option %q: want key=value", pair)
		}
		opts[k] = v
	}
	return opts, nil
}

func newLogger(debug bool, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if debug {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "sam-session %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
			return err
		},
	}
}
