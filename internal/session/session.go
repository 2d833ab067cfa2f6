// Package session runs the interactive loop: it reads lines, dispatches
// commands and sends everything else to the conversation, printing and
// speaking the reply.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/carlos-ai/carlos/internal/conversation"
	"github.com/carlos-ai/carlos/internal/llm"
	"github.com/carlos-ai/carlos/internal/service"
	"github.com/carlos-ai/carlos/internal/speech"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// shutdownTimeout bounds the cleanup run when the session ends.
const shutdownTimeout = 15 * time.Second

// Conversation is the dialogue with the language model.
// *conversation.Manager implements it.
type Conversation interface {
	Ask(ctx context.Context, text string) (string, error)
	Clear()
	History() []conversation.Turn
	Model() string
	UnloadModel(ctx context.Context) error
	MemoryUsage(ctx context.Context) ([]llm.LoadedModel, error)
}

// Speaker reads replies aloud. *speech.Pipeline implements it.
type Speaker interface {
	Speak(text string) bool
	Stop()
	Mute()
	Unmute()
	Muted() bool
	State() speech.State
	Settings() speech.Settings
	Voices(ctx context.Context) ([]string, error)
	SetVoice(ctx context.Context, name string) error
	Close() error
}

// Monitor reports and cleans up external services. *service.Monitor
// implements it.
type Monitor interface {
	Summary() []service.Health
	Shutdown(ctx context.Context) error
}

// Options configures a Session.
type Options struct {
	Name         string
	Prompt       string
	Width        int
	UnloadOnExit bool
	Renderer     Renderer
	Logger       *log.Logger

	// Clipboard copies text for the copy command.
	Clipboard func(string) error
}

// Session is one interactive conversation.
type Session struct {
	id      uuid.UUID
	conv    Conversation
	speaker Speaker
	monitor Monitor
	opts    Options
	out     io.Writer
	logger  *log.Logger

	lastReply    string
	shutdownOnce sync.Once
}

// New creates a session writing to out.
func New(conv Conversation, speaker Speaker, monitor Monitor, out io.Writer, opts Options) *Session {
	if opts.Name == "" {
		opts.Name = "Carlos"
	}
	if opts.Prompt == "" {
		opts.Prompt = "You: "
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Renderer == nil {
		opts.Renderer = PlainRenderer()
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	id := uuid.New()
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		id:      id,
		conv:    conv,
		speaker: speaker,
		monitor: monitor,
		opts:    opts,
		out:     out,
		logger:  logger.With("session", id.String()[:8]),
	}
}

// Run reads lines from in until the user quits, in is exhausted or ctx is
// cancelled, then shuts the session down.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	finished := make(chan struct{})
	defer close(finished)

	// stdin is read on its own goroutine so a signal can end the loop
	// while a read is blocked
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			case <-finished:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	s.logger.Info("Session started", "model", s.conv.Model())
	s.banner()
	defer s.Shutdown()

	for {
		fmt.Fprint(s.out, promptStyle.Render(s.opts.Prompt))
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("unable to read input: %w", err)
					}
				default:
				}
				return nil
			}
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Shutdown stops speech, unloads the model when configured to, and stops
// the services this session started. It runs once; later calls return
// immediately.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.speaker.Stop()
		if s.opts.UnloadOnExit {
			if err := s.conv.UnloadModel(ctx); err != nil && !errors.Is(err, llm.ErrUnsupported) {
				s.logger.Warn("Could not unload model", "err", err)
			}
		}
		if err := s.speaker.Close(); err != nil {
			s.logger.Warn("Could not close speech output", "err", err)
		}
		if err := s.monitor.Shutdown(ctx); err != nil {
			s.logger.Warn("Could not stop services", "err", err)
		}
		s.logger.Info("Session ended")
		fmt.Fprintln(s.out, "Goodbye!")
	})
}

func (s *Session) banner() {
	fmt.Fprintf(s.out, "%s is ready (model %s).\n", nameStyle.Render(s.opts.Name), s.conv.Model())

	speechStatus := "unavailable"
	if s.reachable(service.NameTTS) {
		settings := s.speaker.Settings()
		speechStatus = fmt.Sprintf("voice %s, volume %d%%", settings.Voice, int(settings.Volume*100+0.5))
	}
	if s.speaker.Muted() {
		speechStatus += ", muted"
	}
	fmt.Fprintln(s.out, noteStyle.Render("Speech: "+speechStatus+". Type help for commands."))
}

func (s *Session) reachable(name string) bool {
	for _, h := range s.monitor.Summary() {
		if h.Name == name {
			return h.Reachable
		}
	}
	return false
}

// handle dispatches one line and reports whether the session should end.
// Commands are single words, matched without regard to case, except
// "voice <name>". Anything else is a message for the model.
func (s *Session) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	if len(fields) > 1 && cmd != "voice" {
		cmd = ""
	}

	switch cmd {
	case "quit", "exit", "bye":
		return true
	case "clear":
		s.conv.Clear()
		s.note("Conversation history cleared.")
	case "history":
		s.history()
	case "mute":
		s.speaker.Mute()
		s.note("Speech muted.")
	case "unmute":
		s.speaker.Unmute()
		s.note("Speech unmuted.")
	case "stop":
		s.speaker.Stop()
		s.note("Speech stopped.")
	case "voices":
		s.voices(ctx)
	case "voice":
		s.voice(ctx, strings.TrimSpace(line[len(fields[0]):]))
	case "memory":
		s.memory(ctx)
	case "unload":
		s.unload(ctx)
	case "status":
		s.status()
	case "copy":
		s.copyReply()
	case "help":
		s.help()
	default:
		s.chat(ctx, line)
	}
	return false
}

func (s *Session) chat(ctx context.Context, text string) {
	reply, err := s.conv.Ask(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.failure(err)
		return
	}
	s.lastReply = reply

	rendered, err := s.opts.Renderer.Render(reply)
	if err != nil {
		s.logger.Warn("Could not render reply", "err", err)
		rendered = reply + "\n"
	}
	fmt.Fprintf(s.out, "%s:\n%s", nameStyle.Render(s.opts.Name), rendered)

	if !s.speaker.Speak(reply) {
		s.note("(speech unavailable)")
	}
}

func (s *Session) failure(err error) {
	s.logger.Warn("Request failed", "err", err)

	var msg string
	switch {
	case errors.Is(err, conversation.ErrValidation):
		msg = "Please type a message."
	case errors.Is(err, conversation.ErrAskInFlight):
		msg = "Still waiting for the previous answer."
	case errors.Is(err, service.ErrTimeout):
		msg = "The language model took too long to answer. Try again."
	case errors.Is(err, service.ErrUnavailable):
		msg = "The language model is not reachable. Is it running?"
	default:
		msg = "Something went wrong: " + err.Error()
	}
	fmt.Fprintln(s.out, errorStyle.Render(msg))
}

func (s *Session) note(msg string) {
	fmt.Fprintln(s.out, noteStyle.Render(msg))
}
