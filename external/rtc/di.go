package rtc

import (
	"github.com/foxseedlab/tsuhoban/internal/config"
	"github.com/foxseedlab/tsuhoban/internal/rtc"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (rtc.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewPionClient(cfg.RTCSignalURL), nil
	})
}
