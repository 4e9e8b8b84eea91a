//go:build opus

package audio

import (
	"github.com/foxseedlab/tsuhoban/internal/audio"
	"github.com/hraban/opus"
)

const (
	sampleRate      = 48000
	channels        = 2
	frameSizeMs     = 20
	samplesPerFrame = sampleRate * frameSizeMs * channels / 1000
)

type OpusDecoder struct {
	dec *opus.Decoder
}

func NewOpusDecoder() (audio.Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &OpusDecoder{dec: dec}, nil
}

func (d *OpusDecoder) Decode(packet []byte) ([]float32, error) {
	if len(packet) == 0 {
		return nil, nil
	}
	pcm := make([]float32, samplesPerFrame)
	n, err := d.dec.DecodeFloat32(packet, pcm)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	// downmix interleaved stereo to mono
	mono := make([]float32, n)
	for i := 0; i < n; i++ {
		mono[i] = (pcm[2*i] + pcm[2*i+1]) / 2
	}
	return mono, nil
}

func (d *OpusDecoder) SampleRate() int {
	return sampleRate
}

func (d *OpusDecoder) Close() {}
