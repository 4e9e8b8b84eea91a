package analysis

import (
	"github.com/foxseedlab/tsuhoban/internal/analysis"
	"github.com/foxseedlab/tsuhoban/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (analysis.Dialer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewWSDialer(c.AnalysisWSURL), nil
	})
}
