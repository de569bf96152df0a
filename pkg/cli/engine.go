package cli

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/aimux-org/aimux/pkg/config"
	"github.com/aimux-org/aimux/pkg/distribution"
	"github.com/aimux-org/aimux/pkg/downloader"
	"github.com/aimux-org/aimux/pkg/observability"
	"github.com/aimux-org/aimux/pkg/registry"
	"github.com/aimux-org/aimux/pkg/resolver"
	"github.com/aimux-org/aimux/pkg/version"
)

// engine wires the distribution engine behind one handle for the
// subcommands.
type engine struct {
	cfg        *config.Config
	log        *logrus.Logger
	dist       *distribution.Engine
	registry   *registry.Registry
	resolver   *resolver.Resolver
	downloader *downloader.Downloader
}

func newEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := cfg.NewLogger()

	client := registry.NewClient(cfg.RegistryClientConfig(), log)
	reg := registry.New(client, cfg.RegistryCacheConfig(), log)
	res := resolver.New(resolver.NewRegistrySource(reg), cfg.BuildResolverConfig(), log)

	transport := downloader.NewHTTPTransport(cfg.TransportConfig())
	dl, err := downloader.New(cfg.BuildDownloaderConfig(), transport, log)
	if err != nil {
		return nil, err
	}

	if cfg.Observability.MetricsEnabled {
		metrics := observability.NewMetrics(nil)
		reg.SetMetrics(metrics)
		res.SetMetrics(metrics)
		dl.SetMetrics(metrics)
	}

	return &engine{
		cfg:        cfg,
		log:        log,
		dist:       distribution.New(reg, res, dl, log),
		registry:   reg,
		resolver:   res,
		downloader: dl,
	}, nil
}

// parseSpec splits "owner/name[@constraint]" into a resolver request.
func parseSpec(spec string) (resolver.Request, error) {
	id := spec
	raw := ""
	if at := strings.Index(spec, "@"); at >= 0 {
		id = spec[:at]
		raw = spec[at+1:]
	}
	if _, _, err := registry.SplitPluginID(id); err != nil {
		return resolver.Request{}, fmt.Errorf("invalid plugin spec %q: %w", spec, err)
	}
	c, err := version.ParseConstraint(raw)
	if err != nil {
		return resolver.Request{}, fmt.Errorf("invalid plugin spec %q: %w", spec, err)
	}
	return resolver.Request{PluginID: id, Constraint: c}, nil
}
