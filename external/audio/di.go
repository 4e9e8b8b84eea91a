package audio

import (
	"github.com/foxseedlab/tsuhoban/internal/audio"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideValue(injector, audio.DecoderFactory(NewOpusDecoder))
}
