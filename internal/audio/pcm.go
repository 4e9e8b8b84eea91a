package audio

import (
	"encoding/binary"
	"math"
)

// TargetSampleRate is the rate the analysis backend expects.
const TargetSampleRate = 16000

// Downsample converts samples captured at sourceRate to 16kHz by stride
// selection. Returns the input slice unchanged when sourceRate is already
// 16kHz. Empty input or a non-positive rate yields an empty result.
func Downsample(samples []float32, sourceRate int) []float32 {
	if len(samples) == 0 || sourceRate <= 0 {
		return nil
	}
	if sourceRate == TargetSampleRate {
		return samples
	}

	ratio := float64(sourceRate) / float64(TargetSampleRate)
	newLen := int(math.Round(float64(len(samples)) / ratio))
	result := make([]float32, newLen)
	for i := 0; i < newLen; i++ {
		src := int(math.Round(float64(i) * ratio))
		if src < len(samples) {
			result[i] = samples[src]
		}
	}
	return result
}

// EncodePCM16 encodes samples as little-endian signed 16-bit PCM.
// Samples are clamped to [-1, 1]; NaN and infinities become silence.
func EncodePCM16(samples []float32) []byte {
	if len(samples) == 0 {
		return nil
	}
	buf := make([]byte, len(samples)*2)
	for i, sample := range samples {
		s := float64(sample)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		s = math.Max(-1, math.Min(1, s))
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}
