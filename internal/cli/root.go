package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/logger"
)

var (
	v        = viper.New()
	settings = &config.Settings{}
	appLog   = logger.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "km",
	Short: "km - multi-node memory store and search",
	Long: `km stores content in one or more memory nodes and searches across them.

Every node owns a content index and a list of search indexes (full-text,
vector, graph). Nodes are declared in a JSON configuration file, created with
defaults on first use at ~/.km/config.json.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		appLog.Debug().Str("Command", cmd.Name()).Msg("km CLI finished")
		appLog.Close()
	},
}

// Execute adds all child commands to the root command and runs it. It
// returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error().Err(err).Msg("command failed")
		appLog.Close()
		fmt.Fprintln(rootCmd.ErrOrStderr(), styles.err.Render("Error: ")+err.Error())
		return 1
	}
	return 0
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is ~/.km/config.json)")
	flags.String("log-file", "", "append logs to this file")
	flags.String("verbosity", config.VerbosityNormal, "silent, quiet, normal, verbose or debug")
	flags.String("format", formatHuman, "output format: human, json or yaml")

	// Bind flags to viper
	v.BindPFlag("config", flags.Lookup("config"))
	v.BindPFlag("log_file", flags.Lookup("log-file"))
	v.BindPFlag("verbosity", flags.Lookup("verbosity"))
	v.BindPFlag("format", flags.Lookup("format"))
}

// setup loads .env, resolves settings and starts logging.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: failed to load .env:", err)
	}

	s, err := config.LoadSettings(v)
	if err != nil {
		return err
	}
	// An empty flag value must not hide the default.
	if s.ConfigPath == "" {
		s.ConfigPath = config.DefaultConfigPath()
	}
	if err := validateFormat(s.Format); err != nil {
		return err
	}
	settings = s

	l, err := logger.New(logger.Config{
		Level:        logger.LevelForVerbosity(s.Verbosity),
		File:         s.LogFile,
		Console:      s.Verbosity != config.VerbositySilent,
		ConsoleLevel: consoleLevel(s.Verbosity),
		Pretty:       true,
		Out:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	appLog = l

	appLog.Info().
		Str("Command", cmd.Name()).
		Str("Config", s.ConfigPath).
		Int("Pid", os.Getpid()).
		Msg("km CLI starting")
	return nil
}

// consoleLevel keeps stderr for errors unless more detail is requested.
// Commands report user-facing warnings themselves.
func consoleLevel(verbosity string) string {
	switch verbosity {
	case config.VerbosityVerbose:
		return "warn"
	case config.VerbosityDebug:
		return "debug"
	default:
		return "error"
	}
}
