package main

import (
	"github.com/carlos-ai/carlos/internal/config"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// watchConfig applies voice settings edited in the config file while a
// session is running. Everything else takes effect on the next start.
func watchConfig(a *app) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		reloadSettings(a, viper.GetViper())
	})
	viper.WatchConfig()
}

func reloadSettings(a *app, v *viper.Viper) {
	cfg, err := config.Load(v)
	if err != nil {
		log.Warn("Ignoring config change", "err", err)
		return
	}
	if cfg.TTS.Speed == a.cfg.TTS.Speed && cfg.TTS.Pitch == a.cfg.TTS.Pitch && cfg.TTS.Volume == a.cfg.TTS.Volume {
		return
	}
	log.Info("Voice settings changed", "speed", cfg.TTS.Speed, "pitch", cfg.TTS.Pitch, "volume", cfg.TTS.Volume)
	a.pipeline.SetSettings(cfg.TTS.Speed, cfg.TTS.Pitch, cfg.TTS.Volume)
	a.cfg.TTS.Speed, a.cfg.TTS.Pitch, a.cfg.TTS.Volume = cfg.TTS.Speed, cfg.TTS.Pitch, cfg.TTS.Volume
}
