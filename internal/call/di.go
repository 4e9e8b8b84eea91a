package call

import (
	"github.com/foxseedlab/tsuhoban/internal/analysis"
	"github.com/foxseedlab/tsuhoban/internal/audio"
	"github.com/foxseedlab/tsuhoban/internal/config"
	"github.com/foxseedlab/tsuhoban/internal/gateway"
	"github.com/foxseedlab/tsuhoban/internal/repository"
	"github.com/foxseedlab/tsuhoban/internal/rtc"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Reconciler, error) {
		repo := do.MustInvoke[repository.Repository](i)
		return NewReconciler(repo), nil
	})
	// Transient: the registry builds a fresh session after every Reset, so
	// the session must not be memoized by the injector.
	do.ProvideTransient(injector, func(i do.Injector) (*Session, error) {
		return NewSession(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[gateway.Client](i),
			do.MustInvoke[rtc.Client](i),
			do.MustInvoke[analysis.Dialer](i),
			do.MustInvoke[*Reconciler](i),
			do.MustInvoke[audio.DecoderFactory](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*Registry, error) {
		return NewRegistry(func() *Session {
			return do.MustInvoke[*Session](i)
		}), nil
	})
}
