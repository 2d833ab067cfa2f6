package speech

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidVoice is matched by every InvalidVoiceError.
var ErrInvalidVoice = errors.New("unknown voice")

// InvalidVoiceError names a voice the TTS server does not offer, with the
// closest names it does.
type InvalidVoiceError struct {
	Name        string
	Suggestions []string
}

func (e *InvalidVoiceError) Error() string {
	msg := fmt.Sprintf("%s %q", ErrInvalidVoice, e.Name)
	if len(e.Suggestions) > 0 {
		msg += ", did you mean " + strings.Join(e.Suggestions, " or ") + "?"
	}
	return msg
}

// Is makes errors.Is(err, ErrInvalidVoice) true.
func (e *InvalidVoiceError) Is(target error) bool {
	return target == ErrInvalidVoice
}
