package audio

import (
	"errors"
	"testing"
)

func TestConvertChannels(t *testing.T) {
	mono := Clip{PCM: pcm16(100, -200), SampleRate: 44100, Channels: 1}

	stereo, err := Convert(mono, 44100, 2)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	want := []int16{100, 100, -200, -200}
	got := samples16(stereo.PCM)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stereo sample %d = %d, want %d", i, got[i], want[i])
		}
	}

	back, err := Convert(Clip{PCM: pcm16(100, 300, -100, -300), SampleRate: 44100, Channels: 2}, 44100, 1)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if got := samples16(back.PCM); got[0] != 200 || got[1] != -200 {
		t.Errorf("mono samples = %v, want [200 -200]", got)
	}
}

func TestConvertResample(t *testing.T) {
	// 0.5s at 22050 Hz
	in := Clip{PCM: make([]byte, 11025*2), SampleRate: 22050, Channels: 1}
	for i := 0; i < 11025; i++ {
		copy(in.PCM[i*2:], pcm16(int16(i%100)))
	}

	out, err := Convert(in, 44100, 1)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if out.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", out.SampleRate)
	}
	if out.Frames() != 22050 {
		t.Errorf("frames = %d, want 22050", out.Frames())
	}
	if out.Duration() != in.Duration() {
		t.Errorf("duration changed from %v to %v", in.Duration(), out.Duration())
	}

	// even output frames land on input samples, odd ones interpolate
	got := samples16(out.PCM)
	if got[2] != 1 || got[4] != 2 {
		t.Errorf("samples = %v, want 1 and 2 at frames 2 and 4", got[:6])
	}
	if got[3] != 1 {
		t.Errorf("interpolated sample = %d, want 1", got[3])
	}
}

func TestConvertNoop(t *testing.T) {
	in := Clip{PCM: pcm16(1, 2), SampleRate: 48000, Channels: 2}
	out, err := Convert(in, 48000, 2)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if &out.PCM[0] != &in.PCM[0] {
		t.Error("matching formats should not copy samples")
	}
}

func TestConvertRejectsBadFormats(t *testing.T) {
	tests := []struct {
		name     string
		clip     Clip
		rate, ch int
	}{
		{"zero channels", Clip{SampleRate: 8000}, 44100, 2},
		{"surround target", Clip{SampleRate: 8000, Channels: 1}, 44100, 6},
		{"zero rate", Clip{Channels: 1}, 44100, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(tt.clip, tt.rate, tt.ch)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("err = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}
