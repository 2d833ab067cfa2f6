package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hajimehoshi/go-mp3"
	"github.com/zaf/g711"
)

// WAVE format tags.
const (
	formatPCM        = 1
	formatFloat      = 3
	formatALaw       = 6
	formatMuLaw      = 7
	formatExtensible = 0xFFFE
)

// ErrUnsupportedFormat reports audio Decode does not understand.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decode converts a WAV or MP3 file into a Clip.
func Decode(data []byte) (Clip, error) {
	switch {
	case len(data) == 0:
		return Clip{}, errors.New("audio data is empty")
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return decodeWAV(data)
	case isMP3(data):
		return decodeMP3(data)
	default:
		return Clip{}, ErrUnsupportedFormat
	}
}

func isMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	// frame sync: 11 set bits
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeMP3(data []byte) (Clip, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("invalid mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return Clip{}, fmt.Errorf("unable to decode mp3: %w", err)
	}
	// go-mp3 always produces 16-bit stereo.
	return Clip{PCM: pcm, SampleRate: d.SampleRate(), Channels: 2}, nil
}

type wavFormat struct {
	tag           uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

func decodeWAV(data []byte) (Clip, error) {
	var (
		f       *wavFormat
		samples []byte
	)

	i := 12
	for i+8 <= len(data) {
		id := string(data[i : i+4])
		size := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		body := i + 8
		next := body + size
		if next > len(data) || size < 0 {
			// servers streaming WAV often leave the data size unset
			if id == "data" {
				next = len(data)
			} else {
				return Clip{}, errors.New("invalid wav: chunk exceeds buffer length")
			}
		}

		switch id {
		case "fmt ":
			parsed, err := parseFormat(data[body:next])
			if err != nil {
				return Clip{}, err
			}
			f = &parsed
		case "data":
			samples = data[body:next]
		}

		if size%2 != 0 {
			next++
		}
		i = next
	}

	if f == nil {
		return Clip{}, errors.New("invalid wav: fmt chunk not found")
	}
	if samples == nil {
		return Clip{}, errors.New("invalid wav: data chunk not found")
	}

	pcm, err := toPCM16(*f, samples)
	if err != nil {
		return Clip{}, err
	}
	return Clip{PCM: pcm, SampleRate: f.sampleRate, Channels: f.channels}, nil
}

func parseFormat(b []byte) (wavFormat, error) {
	if len(b) < 16 {
		return wavFormat{}, errors.New("invalid wav: fmt chunk too short")
	}
	f := wavFormat{
		tag:           binary.LittleEndian.Uint16(b[0:2]),
		channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		bitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if f.tag == formatExtensible {
		// the sub-format GUID starts with the real tag
		if len(b) < 26 {
			return wavFormat{}, errors.New("invalid wav: extensible fmt chunk too short")
		}
		f.tag = binary.LittleEndian.Uint16(b[24:26])
	}
	if f.channels < 1 || f.channels > 2 {
		return wavFormat{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.channels)
	}
	if f.sampleRate <= 0 {
		return wavFormat{}, errors.New("invalid wav: sample rate must be positive")
	}
	return f, nil
}

// toPCM16 converts WAV sample data to signed 16-bit little-endian.
func toPCM16(f wavFormat, b []byte) ([]byte, error) {
	switch f.tag {
	case formatALaw:
		return g711.DecodeAlaw(b), nil
	case formatMuLaw:
		return g711.DecodeUlaw(b), nil
	case formatFloat:
		if f.bitsPerSample != 32 {
			return nil, fmt.Errorf("%w: %d-bit float", ErrUnsupportedFormat, f.bitsPerSample)
		}
		n := len(b) / 4
		out := make([]byte, n*2)
		for i := 0; i < n; i++ {
			v := math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
			binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(float64(v)*32767)))
		}
		return out, nil
	case formatPCM:
	default:
		return nil, fmt.Errorf("%w: wave format %#x", ErrUnsupportedFormat, f.tag)
	}

	switch f.bitsPerSample {
	case 8:
		// unsigned, centred on 128
		out := make([]byte, len(b)*2)
		for i, s := range b {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(int(s)-128)<<8))
		}
		return out, nil
	case 16:
		n := len(b) &^ 1
		out := make([]byte, n)
		copy(out, b[:n])
		return out, nil
	case 24:
		n := len(b) / 3
		out := make([]byte, n*2)
		for i := 0; i < n; i++ {
			// keep the two most significant bytes
			out[i*2] = b[i*3+1]
			out[i*2+1] = b[i*3+2]
		}
		return out, nil
	case 32:
		n := len(b) / 4
		out := make([]byte, n*2)
		for i := 0; i < n; i++ {
			out[i*2] = b[i*4+2]
			out[i*2+1] = b[i*4+3]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d-bit pcm", ErrUnsupportedFormat, f.bitsPerSample)
	}
}

func clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}

// EncodeWAV wraps 16-bit PCM in a canonical WAV header.
func EncodeWAV(c Clip) []byte {
	const headerSize = 44
	blockAlign := c.frameSize()
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(c.PCM)))

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(c.PCM)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(c.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(c.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(c.SampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(c.PCM)))
	buf.Write(c.PCM)
	return buf.Bytes()
}
