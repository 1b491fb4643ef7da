package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the node configuration",
	Long: `Show the node configuration, creating the default file on first use.

Subcommands:
  init      - write a default configuration
  validate  - check the configuration file
  path      - print the configuration file location`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := map[string]string{"path": settings.ConfigPath}
		return newPrinter(cmd).print(out, func(w io.Writer) {
			fmt.Fprintln(w, settings.ConfigPath)
		})
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd, configPathCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p := newPrinter(cmd)
	if p.format == formatYAML {
		return p.print(cfg, nil)
	}
	// The on-disk JSON carries the $type discriminators.
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.out.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	path := settings.ConfigPath

	_, err := os.Stat(path)
	switch {
	case err == nil && !force:
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return err
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := config.Save(config.CreateDefault(dir), path); err != nil {
		return err
	}
	appLog.Info().Str("path", path).Msg("configuration written")

	out := map[string]string{"path": path}
	return newPrinter(cmd).print(out, func(w io.Writer) {
		fmt.Fprintf(w, "%s Wrote default configuration to %s\n", styles.ok.Render("✓"), path)
	})
}

type validateOutput struct {
	Valid   bool   `json:"valid" yaml:"valid"`
	Path    string `json:"path" yaml:"path"`
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := settings.ConfigPath
	if _, err := os.Stat(path); err != nil {
		return err
	}

	out := validateOutput{Valid: true, Path: path}
	_, err := loadConfig()
	var cfgErr *config.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		out.Valid = false
		out.Field = cfgErr.ConfigPath
		out.Message = cfgErr.Message
	case err != nil:
		return err
	}

	if perr := newPrinter(cmd).print(out, func(w io.Writer) {
		if out.Valid {
			fmt.Fprintf(w, "%s %s is valid\n", styles.ok.Render("✓"), path)
			return
		}
		fmt.Fprintf(w, "%s %s is invalid\n", styles.err.Render("✗"), path)
		if out.Field != "" {
			printKV(w, "Field", out.Field)
		}
		printKV(w, "Problem", out.Message)
	}); perr != nil {
		return perr
	}
	if !out.Valid {
		return err
	}
	return nil
}
