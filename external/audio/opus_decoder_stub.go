//go:build !opus

package audio

import "github.com/foxseedlab/tsuhoban/internal/audio"

type noopDecoder struct{}

func NewOpusDecoder() (audio.Decoder, error) {
	return &noopDecoder{}, nil
}

func (d *noopDecoder) Decode(_ []byte) ([]float32, error) {
	return nil, nil
}

func (d *noopDecoder) SampleRate() int {
	return 48000
}

func (d *noopDecoder) Close() {}
