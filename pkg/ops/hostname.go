package ops

import (
	"context"

	"github.com/nicklasfrahm/rcmd/pkg/engine"
)

// Hostname returns the hostnames of the selected hosts by their name.
func Hostname(ctx context.Context, options ...Option) (map[string]string, error) {
	var hostnames map[string]string
	err := withEngine(ctx, options, func(eng *engine.Engine, opts *Options) error {
		var err error
		hostnames, err = eng.Hostnames(ctx, opts.Selector, opts.FQDN)
		return err
	})

	return hostnames, err
}
