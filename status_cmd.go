package main

import (
	"fmt"
	"io"
	"time"

	"github.com/carlos-ai/carlos/internal/config"
	"github.com/carlos-ai/carlos/internal/service"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the language model and speech servers",
	Long:  paragraph(fmt.Sprintf("\n%s whether the servers carlos talks to are answering. Nothing is started.", keyword("Check"))),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		monitor := service.NewMonitor()
		services := []service.Service{service.FromLLMConfig(cfg.LLM)}
		if cfg.TTS.Enabled {
			services = append(services, service.FromTTSConfig(cfg.TTS))
		}
		health := make([]service.Health, 0, len(services))
		for _, svc := range services {
			health = append(health, monitor.Check(cmd.Context(), svc))
		}
		printHealth(cmd.OutOrStdout(), health, time.Now())
		return nil
	},
}

func printHealth(w io.Writer, health []service.Health, now time.Time) {
	for _, h := range health {
		state := keyword("up")
		if !h.Reachable {
			state = "down"
		}
		fmt.Fprintf(w, "%-4s %-5s %s (%s)\n", h.Name, state, h.URL, humanize.RelTime(h.LastChecked, now, "ago", "from now")) //nolint:errcheck
		if h.Err != nil {
			fmt.Fprintf(w, "     %v\n", h.Err) //nolint:errcheck
		}
	}
}
