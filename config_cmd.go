package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/carlos-ai/carlos/internal/config"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# log debug messages
debug: false

# Language model server
llm:
  # ollama or openai (any OpenAI-compatible server)
  backend: "ollama"
  base_url: "http://localhost:11434"
  model: "gpt-oss:20b"
  temperature: 0.7
  max_tokens: 500
  timeout: "30s"
  # longest wait for a health check
  probe_timeout: "3s"
  # api_key: "your-api-key-here"
  # system_prompt: "You are Carlos, a helpful and friendly AI assistant."
  # characters of conversation sent with each request
  context_budget: 12000
  # most recent turns kept in the context
  max_turns: 40
  # free the model's memory when the session ends
  unload_on_exit: true
  launch:
    auto_start: true
    command: ["ollama", "serve"]
    startup_wait: "5s"
    stop_on_exit: false

# Speech synthesis server
tts:
  enabled: true
  # alltalk or simple
  api: "alltalk"
  base_url: "http://localhost:7851"
  voice: "default"
  language: "en"
  speed: 1.0
  pitch: 1.0
  # 0.0 to 1.0
  volume: 0.8
  timeout: "10s"
  probe_timeout: "2s"
  requests_per_minute: 120
  cache:
    enabled: true
    # dir: "~/.cache/carlos/audio"
    memory_bytes: 33554432
    disk_bytes: 268435456
    ttl: "168h"
  launch:
    auto_start: false
    # command: ["python", "script.py"]
    # dir: "/path/to/alltalk"
    startup_wait: "10s"

# Speech output
speech:
  muted: false
  # longest reply read aloud, in characters
  max_chars: 1000
  # longest piece sent to the server at once
  chunk_chars: 250
  # pieces synthesized ahead of playback
  lookahead: 2
  # 44100 or 48000
  sample_rate: 44100
  channels: 2

# Interactive session
session:
  name: "Carlos"
  prompt: "You: "
  # render replies as markdown
  markdown: true
  # style name or JSON path (default "auto")
  style: "auto"
  # word-wrap at width (0 detects the terminal width)
  width: 0
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the carlos config file",
	Long:    paragraph(fmt.Sprintf("\n%s the carlos config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("carlos config\ncarlos config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Carlos", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  paragraph(fmt.Sprintf("\n%s the configuration carlos would run with: defaults, the config file and CARLOS_ environment variables combined.", keyword("Print"))),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		return writeConfig(cmd.OutOrStdout(), cfg)
	},
}

// writeConfig prints cfg as YAML with secrets redacted.
func writeConfig(w io.Writer, cfg config.Config) error {
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = "<redacted>"
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("unable to encode config: %w", err)
	}
	return enc.Close()
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
