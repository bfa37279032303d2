package audio

import (
	"errors"
	"math"
)

// Encoding identifies the sample format carried by a Frame
type Encoding int

const (
	EncodingMulaw Encoding = iota
	EncodingPCM16
)

func (e Encoding) String() string {
	switch e {
	case EncodingMulaw:
		return "mulaw"
	case EncodingPCM16:
		return "pcm16"
	default:
		return "unknown"
	}
}

// TelephonyRate is the sample rate of carrier μ-law audio
const TelephonyRate = 8000

// Frame is a chunk of audio together with its encoding and sample rate
type Frame struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int
}

// MulawFrame wraps carrier audio in a Frame
func MulawFrame(data []byte) Frame {
	return Frame{Data: data, Encoding: EncodingMulaw, SampleRate: TelephonyRate}
}

// Duration returns the playout length of the frame in milliseconds
func (f Frame) Duration() int {
	if f.SampleRate == 0 {
		return 0
	}
	samples := len(f.Data)
	if f.Encoding == EncodingPCM16 {
		samples /= 2
	}
	return samples * 1000 / f.SampleRate
}

// ErrOddLength is returned when PCM16 input does not hold a whole number of samples
var ErrOddLength = errors.New("audio: PCM16 data length must be even")

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawDecodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		b := ^byte(i)
		sign := b & 0x80
		exponent := int32(b>>4) & 0x07
		mantissa := int32(b) & 0x0F
		magnitude := ((mantissa<<3)+mulawBias)<<exponent - mulawBias
		if sign != 0 {
			magnitude = -magnitude
		}
		mulawDecodeTable[i] = int16(magnitude)
	}
}

// MulawToPCM decodes G.711 μ-law bytes into 16-bit little-endian PCM.
// The output is always twice the length of the input.
func MulawToPCM(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		s := mulawDecodeTable[b]
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm
}

// PCMToMulaw encodes 16-bit little-endian PCM into G.711 μ-law.
//
// The two zero codes 0x7F and 0xFF both decode to 0 and re-encode to 0xFF,
// so a decode/encode round trip is exact for every other byte.
func PCMToMulaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]byte, len(pcm)/2)
	for i := range out {
		out[i] = EncodeMulawSample(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
	}
	return out, nil
}

// EncodeMulawSample encodes a single linear sample
func EncodeMulawSample(sample int16) byte {
	s := int32(sample)
	var sign byte
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(s>>(exponent+3)) & 0x0F

	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMulawSample decodes a single μ-law byte
func DecodeMulawSample(b byte) int16 {
	return mulawDecodeTable[b]
}

// Resample converts samples between rates using linear interpolation.
// When the rates match the input slice itself is returned.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return samples
	}
	n := len(samples)
	if n == 0 {
		return []int16{}
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(math.Floor(float64(n) / ratio))
	out := make([]int16, outLen)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 >= n {
			i0 = n - 1
		}
		i1 := i0 + 1
		if i1 >= n {
			i1 = n - 1
		}
		frac := srcPos - float64(i0)
		v := math.Round(float64(samples[i0])*(1-frac) + float64(samples[i1])*frac)
		out[i] = clampInt16(v)
	}
	return out
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// BytesToSamples reinterprets little-endian PCM16 bytes as samples
func BytesToSamples(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddLength
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}
	return samples, nil
}

// SamplesToBytes serializes samples as little-endian PCM16
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// ConvertPCMToMulaw resamples PCM16 audio to outRate and encodes it as μ-law.
// Used on the synthesis path where providers return linear PCM.
func ConvertPCMToMulaw(pcm []byte, inRate, outRate int) ([]byte, error) {
	samples, err := BytesToSamples(pcm)
	if err != nil {
		return nil, err
	}
	samples = Resample(samples, inRate, outRate)
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = EncodeMulawSample(s)
	}
	return out, nil
}

// ConvertMulawToPCM decodes carrier audio and resamples it to outRate
func ConvertMulawToPCM(mulaw []byte, outRate int) []byte {
	if outRate == TelephonyRate {
		return MulawToPCM(mulaw)
	}
	samples := make([]int16, len(mulaw))
	for i, b := range mulaw {
		samples[i] = DecodeMulawSample(b)
	}
	return SamplesToBytes(Resample(samples, TelephonyRate, outRate))
}

// MulawRMS computes the level of a μ-law frame without allocating PCM bytes
func MulawRMS(mulaw []byte) float64 {
	if len(mulaw) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, b := range mulaw {
		s := float64(DecodeMulawSample(b))
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(mulaw)))
}
