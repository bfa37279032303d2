package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestMulawRoundTrip(t *testing.T) {
	mismatches := 0
	for b := 0; b < 256; b++ {
		pcm := MulawToPCM([]byte{byte(b)})
		if len(pcm) != 2 {
			t.Fatalf("Expected 2 PCM bytes, got %d", len(pcm))
		}
		out, err := PCMToMulaw(pcm)
		if err != nil {
			t.Fatalf("PCMToMulaw failed: %v", err)
		}
		if out[0] != byte(b) {
			mismatches++
			if b != 0x7F {
				t.Errorf("Round trip changed byte 0x%02X into 0x%02X", b, out[0])
			}
		}
	}
	if mismatches > 2 {
		t.Errorf("Expected at most 2 mismatches, got %d", mismatches)
	}
}

func TestMulawZeroCollapse(t *testing.T) {
	for _, b := range []byte{0x7F, 0xFF} {
		if s := DecodeMulawSample(b); s != 0 {
			t.Errorf("Expected 0x%02X to decode to 0, got %d", b, s)
		}
	}
	if got := EncodeMulawSample(0); got != 0xFF {
		t.Errorf("Expected 0 to encode to 0xFF, got 0x%02X", got)
	}
}

func TestMulawToPCMLength(t *testing.T) {
	in := []byte{0x00, 0x80, 0x7E, 0xFF, 0x10}
	pcm := MulawToPCM(in)
	if len(pcm) != len(in)*2 {
		t.Errorf("Expected PCM length %d, got %d", len(in)*2, len(pcm))
	}

	// 0x00 is the most negative code, 0x80 the most positive
	first := int16(binary.LittleEndian.Uint16(pcm[0:2]))
	second := int16(binary.LittleEndian.Uint16(pcm[2:4]))
	if first != -32124 || second != 32124 {
		t.Errorf("Expected extremes -32124/32124, got %d/%d", first, second)
	}
}

func TestPCMToMulawRejectsOddLength(t *testing.T) {
	_, err := PCMToMulaw([]byte{0x01, 0x02, 0x03})
	if !errors.Is(err, ErrOddLength) {
		t.Errorf("Expected ErrOddLength, got %v", err)
	}
}

func TestPCMToMulawClips(t *testing.T) {
	pcm := SamplesToBytes([]int16{32767, -32768})
	out, err := PCMToMulaw(pcm)
	if err != nil {
		t.Fatalf("PCMToMulaw failed: %v", err)
	}
	if out[0] != 0x80 || out[1] != 0x00 {
		t.Errorf("Expected clipped codes 0x80/0x00, got 0x%02X/0x%02X", out[0], out[1])
	}
}

func TestResampleIdentity(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	out := Resample(samples, 8000, 8000)
	if &out[0] != &samples[0] {
		t.Error("Expected identity resample to return the same slice")
	}
}

func TestResampleLengths(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		from, to int
		want     int
	}{
		{"downsample 24k to 8k", 2400, 24000, 8000, 800},
		{"downsample uneven", 1000, 24000, 8000, 333},
		{"upsample 8k to 16k", 100, 8000, 16000, 200},
		{"downsample 16k to 8k", 101, 16000, 8000, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Resample(make([]int16, tt.n), tt.from, tt.to)
			if len(out) != tt.want {
				t.Errorf("Expected %d samples, got %d", tt.want, len(out))
			}
		})
	}
}

func TestResampleInterpolates(t *testing.T) {
	out := Resample([]int16{0, 100, 200}, 8000, 16000)
	want := []int16{0, 50, 100, 150, 200, 200}
	if len(out) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], out[i])
		}
	}
}

func TestConvertPCMToMulawResamples(t *testing.T) {
	samples := make([]int16, 2400)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	out, err := ConvertPCMToMulaw(SamplesToBytes(samples), 24000, 8000)
	if err != nil {
		t.Fatalf("ConvertPCMToMulaw failed: %v", err)
	}
	if len(out) != 800 {
		t.Errorf("Expected 800 bytes, got %d", len(out))
	}
}

func TestConvertMulawToPCMUpsamples(t *testing.T) {
	out := ConvertMulawToPCM(make([]byte, 160), 16000)
	if len(out) != 640 {
		t.Errorf("Expected 640 bytes, got %d", len(out))
	}
}

func TestBytesToSamples(t *testing.T) {
	samples, err := BytesToSamples([]byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80})
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}
	expected := []int16{0, 32767, -32768}
	for i, exp := range expected {
		if samples[i] != exp {
			t.Errorf("Expected sample %d at index %d, got %d", exp, i, samples[i])
		}
	}
	if back := SamplesToBytes(samples); string(back) != string([]byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}) {
		t.Errorf("SamplesToBytes mismatch: %v", back)
	}
}

func TestMulawRMS(t *testing.T) {
	frame := []byte{
		EncodeMulawSample(1000), EncodeMulawSample(-1000),
		EncodeMulawSample(2000), EncodeMulawSample(-2000),
	}
	sum := 0.0
	for _, b := range frame {
		v := float64(DecodeMulawSample(b))
		sum += v * v
	}
	expected := math.Sqrt(sum / 4)
	if rms := MulawRMS(frame); math.Abs(rms-expected) > 0.1 {
		t.Errorf("Expected RMS %.2f, got %.2f", expected, rms)
	}
	if MulawRMS(nil) != 0 {
		t.Error("Expected RMS 0 for empty input")
	}
}

func TestFrameDuration(t *testing.T) {
	if d := MulawFrame(make([]byte, 800)).Duration(); d != 100 {
		t.Errorf("Expected 100ms, got %d", d)
	}
	pcm := Frame{Data: make([]byte, 3200), Encoding: EncodingPCM16, SampleRate: 16000}
	if d := pcm.Duration(); d != 100 {
		t.Errorf("Expected 100ms, got %d", d)
	}
}
