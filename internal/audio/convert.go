package audio

import (
	"encoding/binary"
	"fmt"
)

// Convert resamples and remixes c to the given output format. Resampling
// is linear, which is enough for speech.
func Convert(c Clip, sampleRate, channels int) (Clip, error) {
	if c.Channels < 1 || c.Channels > 2 || channels < 1 || channels > 2 {
		return Clip{}, fmt.Errorf("%w: only mono or stereo is supported", ErrUnsupportedFormat)
	}
	if c.SampleRate <= 0 || sampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: sample rate must be positive", ErrUnsupportedFormat)
	}

	out := c
	if c.Channels != channels {
		if channels == 2 {
			out = Clip{PCM: monoToStereo(out.PCM), SampleRate: out.SampleRate, Channels: 2}
		} else {
			out = Clip{PCM: stereoToMono(out.PCM), SampleRate: out.SampleRate, Channels: 1}
		}
	}
	if out.SampleRate != sampleRate {
		out = resample(out, sampleRate)
	}
	return out, nil
}

func monoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		copy(out[i*4:i*4+2], pcm[i*2:i*2+2])
		copy(out[i*4+2:i*4+4], pcm[i*2:i*2+2])
	}
	return out
}

func stereoToMono(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		left := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		right := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((int(left)+int(right))/2)))
	}
	return out
}

func resample(c Clip, sampleRate int) Clip {
	in := c.Frames()
	if in == 0 {
		return Clip{PCM: nil, SampleRate: sampleRate, Channels: c.Channels}
	}
	outFrames := int(int64(in) * int64(sampleRate) / int64(c.SampleRate))
	if outFrames < 1 {
		outFrames = 1
	}
	ratio := float64(c.SampleRate) / float64(sampleRate)
	fs := c.frameSize()
	out := make([]byte, outFrames*fs)

	sample := func(frame, ch int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(c.PCM[frame*fs+ch*2:])))
	}

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		k := j + 1
		if k >= in {
			k = in - 1
		}
		if j >= in {
			j = in - 1
		}
		for ch := 0; ch < c.Channels; ch++ {
			v := sample(j, ch)*(1-frac) + sample(k, ch)*frac
			binary.LittleEndian.PutUint16(out[i*fs+ch*2:], uint16(clamp16(v)))
		}
	}
	return Clip{PCM: out, SampleRate: sampleRate, Channels: c.Channels}
}
