package gateway

import (
	"github.com/foxseedlab/tsuhoban/internal/config"
	"github.com/foxseedlab/tsuhoban/internal/gateway"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (gateway.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPClient(c.GatewayAPIBaseURL, c.OperatorKey, c.RequestTimeout()), nil
	})
}
