package audio

// Decoder turns one compressed audio packet from a remote participant into
// mono float32 PCM at SampleRate.
type Decoder interface {
	Decode(packet []byte) ([]float32, error)
	SampleRate() int
	Close()
}

type DecoderFactory func() (Decoder, error)
