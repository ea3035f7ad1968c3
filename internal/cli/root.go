// Package cli implements the galcoord command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/star/galcoord/internal/config"
	"github.com/star/galcoord/internal/coord"
)

// RootOptions holds global flags and the state they resolve to.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "text" | "json" | "yaml"
	Alpha      float64
	Gamma      float64

	cfg    *config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the galcoord CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "galcoord",
		Short: "Coordinate and derivative conversion for galactic dynamics",
		Long: `galcoord converts positions, velocities, gradients and Hessians between
Cartesian, cylindrical, spherical and prolate-spheroidal coordinates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if opts.LogLevel != "" {
				cfg.Log.Level = opts.LogLevel
			}
			if cmd.Flags().Changed("alpha") {
				cfg.ProlSph.Alpha = opts.Alpha
			}
			if cmd.Flags().Changed("gamma") {
				cfg.ProlSph.Gamma = opts.Gamma
			}
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid settings", err)
			}
			opts.cfg = cfg
			opts.logger = newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides the config")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().Float64Var(&opts.Alpha, "alpha", 0, "prolate-spheroidal alpha, overrides the config")
	cmd.PersistentFlags().Float64Var(&opts.Gamma, "gamma", 0, "prolate-spheroidal gamma, overrides the config")

	// Add subcommands
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewDerivCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "text" {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// shape returns the configured prolate-spheroidal shape.
func (o *RootOptions) shape() coord.Shape {
	return o.cfg.Shape()
}

func parseSystems(from, to string) (coord.System, coord.System, error) {
	src, err := coord.ParseSystem(from)
	if err != nil {
		return 0, 0, WrapExitError(ExitCommandError, "--from", err)
	}
	dst, err := coord.ParseSystem(to)
	if err != nil {
		return 0, 0, WrapExitError(ExitCommandError, "--to", err)
	}
	return src, dst, nil
}
