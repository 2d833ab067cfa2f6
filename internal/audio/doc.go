// Package audio decodes synthesized speech and plays it through the
// system's audio device using the oto/v3 library. Playback is
// asynchronous: Play returns a Playback handle that can be waited on or
// stopped.
package audio
