package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carlos-ai/carlos/internal/llm"
	"github.com/carlos-ai/carlos/internal/speech"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
)

var commands = []struct{ name, help string }{
	{"help", "show this help"},
	{"clear", "forget the conversation so far"},
	{"history", "show the conversation so far"},
	{"mute", "stop speaking replies"},
	{"unmute", "speak replies again"},
	{"stop", "stop the reply being spoken"},
	{"voices", "list the available voices"},
	{"voice <name>", "change the voice"},
	{"memory", "show models loaded by the server"},
	{"unload", "free the model's memory"},
	{"status", "show service and speech status"},
	{"copy", "copy the last reply to the clipboard"},
	{"quit", "end the session (also exit, bye)"},
}

func (s *Session) help() {
	width := 0
	for _, c := range commands {
		width = max(width, runewidth.StringWidth(c.name))
	}
	for _, c := range commands {
		fmt.Fprintf(s.out, "  %s  %s\n", keywordStyle.Render(runewidth.FillRight(c.name, width)), c.help)
	}
}

func (s *Session) history() {
	turns := s.conv.History()
	if len(turns) == 0 {
		s.note("No conversation yet.")
		return
	}
	for _, t := range turns {
		who := "You"
		if t.Role == llm.RoleAssistant {
			who = s.opts.Name
		}
		line := fmt.Sprintf("[%s] %s", who, strings.Join(strings.Fields(t.Text), " "))
		fmt.Fprintln(s.out, truncate.StringWithTail(line, uint(s.opts.Width), "…")) //nolint:gosec
	}
}

func (s *Session) voices(ctx context.Context) {
	voices, err := s.speaker.Voices(ctx)
	if err != nil {
		s.logger.Warn("Could not list voices", "err", err)
		fmt.Fprintln(s.out, errorStyle.Render("Could not list voices: the TTS server is not reachable."))
		return
	}
	s.printVoices(voices)
}

func (s *Session) printVoices(voices []string) {
	if len(voices) == 0 {
		s.note("The TTS server offers no voices.")
		return
	}
	current := s.speaker.Settings().Voice
	width := 0
	for _, v := range voices {
		width = max(width, runewidth.StringWidth(v))
	}
	for _, v := range voices {
		marker := " "
		suffix := ""
		if strings.EqualFold(v, current) {
			marker = "*"
			suffix = noteStyle.Render(" (current)")
		}
		fmt.Fprintf(s.out, " %s %s%s\n", marker, runewidth.FillRight(v, width), suffix)
	}
}

func (s *Session) voice(ctx context.Context, name string) {
	if name == "" {
		s.note("Current voice: " + s.speaker.Settings().Voice)
		return
	}
	err := s.speaker.SetVoice(ctx, name)
	if err == nil {
		s.note("Voice set to " + s.speaker.Settings().Voice + ".")
		return
	}

	var invalid *speech.InvalidVoiceError
	if errors.As(err, &invalid) {
		fmt.Fprintln(s.out, errorStyle.Render(capitalize(err.Error())+"."))
		if voices, verr := s.speaker.Voices(ctx); verr == nil {
			s.printVoices(voices)
		}
		return
	}
	s.logger.Warn("Could not change voice", "err", err)
	fmt.Fprintln(s.out, errorStyle.Render("Could not change voice: the TTS server is not reachable."))
}

func (s *Session) memory(ctx context.Context) {
	models, err := s.conv.MemoryUsage(ctx)
	switch {
	case errors.Is(err, llm.ErrUnsupported):
		s.note("This backend does not report memory usage.")
		return
	case err != nil:
		s.failure(err)
		return
	}
	if len(models) == 0 {
		s.note("No models are loaded.")
		return
	}
	for _, m := range models {
		line := fmt.Sprintf("  %s  %s", keywordStyle.Render(m.Name), humanize.IBytes(uint64(max(m.Size, 0)))) //nolint:gosec
		if m.VRAM > 0 {
			line += fmt.Sprintf(" (%s VRAM)", humanize.IBytes(uint64(m.VRAM))) //nolint:gosec
		}
		if !m.ExpiresAt.IsZero() {
			line += noteStyle.Render(", unloads " + humanize.RelTime(m.ExpiresAt, time.Now(), "ago", "from now"))
		}
		fmt.Fprintln(s.out, line)
	}
}

func (s *Session) unload(ctx context.Context) {
	err := s.conv.UnloadModel(ctx)
	switch {
	case errors.Is(err, llm.ErrUnsupported):
		s.note("This backend cannot unload models.")
	case err != nil:
		s.failure(err)
	default:
		s.note("Unloaded " + s.conv.Model() + ".")
	}
}

func (s *Session) status() {
	for _, h := range s.monitor.Summary() {
		state := okStyle.Render("up")
		if !h.Reachable {
			state = errorStyle.Render("down")
		}
		line := fmt.Sprintf("  %-4s %s  %s", h.Name, state, h.URL)
		if h.Launched {
			line += noteStyle.Render(" (started by carlos)")
		}
		if !h.LastChecked.IsZero() {
			line += noteStyle.Render(", checked " + humanize.Time(h.LastChecked))
		}
		fmt.Fprintln(s.out, line)
	}

	settings := s.speaker.Settings()
	speechState := s.speaker.State().String()
	if s.speaker.Muted() {
		speechState += ", muted"
	}
	fmt.Fprintf(s.out, "  speech %s, voice %s, volume %d%%\n", speechState, settings.Voice, int(settings.Volume*100+0.5))
}

func (s *Session) copyReply() {
	if s.lastReply == "" {
		s.note("Nothing to copy yet.")
		return
	}
	if err := s.opts.Clipboard(s.lastReply); err != nil {
		s.logger.Warn("Could not copy to clipboard", "err", err)
		fmt.Fprintln(s.out, errorStyle.Render("Could not copy to the clipboard."))
		return
	}
	s.note("Copied the last reply to the clipboard.")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
