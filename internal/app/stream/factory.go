package stream

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/segue/internal/infra/config"
)

// Constructor builds a resolver component from its config settings.
// The result must implement at least one of Resolver, OfflineResolver or Catalog.
type Constructor func(settings map[string]any) (any, error)

// Registry maps resolver config types to constructors.
type Registry map[string]Constructor

// Sources bundles everything built from the resolver config.
type Sources struct {
	Resolver *Chain
	Catalog  *CatalogChain
	closers  []func() error
}

// Close releases components that hold resources (watchers, connections).
func (s *Sources) Close() error {
	var errs error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// NewSourcesFromConfig creates the resolver and catalog chains from configuration.
// Config order is preserved within each chain.
func NewSourcesFromConfig(cfgs []config.ResolverConfig, registry Registry) (*Sources, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no resolvers configured")
	}

	var (
		offline  []OfflineResolver
		remote   []Resolver
		catalogs []Catalog
		closers  []func() error
	)

	for i, rcfg := range cfgs {
		zlog.Debug().Msgf("creating resolver: index=%d type=%s settings=%+v", i+1, rcfg.Type, rcfg.Settings)

		ctor, ok := registry[rcfg.Type]
		if !ok {
			return nil, errors.Newf("unsupported resolver type: %s (resolver index %d)", rcfg.Type, i)
		}

		settings := rcfg.Settings
		if settings == nil {
			settings = map[string]any{}
		}
		component, err := ctor(settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create resolver (index %d, type %s)", i, rcfg.Type)
		}

		used := false
		if r, ok := component.(OfflineResolver); ok {
			offline = append(offline, r)
			used = true
		}
		if r, ok := component.(Resolver); ok {
			remote = append(remote, r)
			used = true
		}
		if c, ok := component.(Catalog); ok {
			catalogs = append(catalogs, c)
			used = true
		}
		if !used {
			return nil, errors.Newf("resolver type %s provides no resolver or catalog (index %d)", rcfg.Type, i)
		}
		if c, ok := component.(interface{ Close() error }); ok {
			closers = append(closers, c.Close)
		}

		zlog.Info().Msgf("registered resolver: index=%d type=%s name=%s", i+1, rcfg.Type, rcfg.Name)
	}

	return &Sources{
		Resolver: NewChain(offline, remote),
		Catalog:  NewCatalogChain(catalogs),
		closers:  closers,
	}, nil
}

// DecodeSettings decodes a settings map into out, applies defaults and
// validates the result.
func DecodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
