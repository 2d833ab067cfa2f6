// Package main provides the entry point for the carlos CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/carlos-ai/carlos/internal/config"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	model      string
	voice      string
	mute       bool
	style      string
	width      uint

	rootCmd = &cobra.Command{
		Use:   "carlos",
		Short: "Talk with a local language model, out loud",
		Long: paragraph(
			fmt.Sprintf("\nChat with a local language model and %s.", keyword("hear it answer")),
		),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: readConfigFlag,
		RunE:              execute,
	}
)

// readConfigFlag reads the file named by --config instead of the one found
// in the default places.
func readConfigFlag(*cobra.Command, []string) error {
	if configFile == "" {
		return nil
	}
	path, err := homedir.Expand(configFile)
	if err != nil {
		return fmt.Errorf("unable to expand config path: %w", err)
	}
	configFile = path
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	return nil
}

// loadConfig builds the effective configuration and applies command line
// overrides on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("model") {
		cfg.LLM.Model = model
	}
	if flags.Changed("voice") {
		cfg.TTS.Voice = voice
	}
	if flags.Changed("mute") {
		cfg.Speech.Muted = mute
	}
	if flags.Changed("style") {
		cfg.Session.Style = style
	}
	if flags.Changed("width") {
		cfg.Session.Width = int(width) //nolint:gosec
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if err := validateStyle(cfg.Session.Style); err != nil {
		return config.Config{}, err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	// We want to use a special no-TTY style, when stdout is not a terminal
	// and there was no specific style passed by arg
	if !isTerminal && !flags.Changed("style") {
		cfg.Session.Style = "notty"
	}

	// Detect terminal width
	if cfg.Session.Width == 0 {
		if isTerminal {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				cfg.Session.Width = min(w, 120)
			}
		}
		if cfg.Session.Width == 0 {
			cfg.Session.Width = 80
		}
	}
	return cfg, nil
}

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		style, err := homedir.Expand(style)
		if err != nil {
			return fmt.Errorf("unable to expand style path: %w", err)
		}
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func execute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	watchConfig(a)
	return a.session.Run(ctx, os.Stdin)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "log debug messages")
	rootCmd.Flags().StringVarP(&model, "model", "m", "", "language model to talk to")
	rootCmd.Flags().StringVarP(&voice, "voice", "v", "", "voice to speak with")
	rootCmd.Flags().BoolVar(&mute, "mute", false, "start with speech muted")
	rootCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "style name or JSON path for replies")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap replies at width (0 detects the terminal width)")

	rootCmd.AddCommand(configCmd, manCmd, statusCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "carlos")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "carlos")}, dirs...)
	}

	if c := os.Getenv("CARLOS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("carlos")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "carlos.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not read default configuration", "err", err)
	}
}
