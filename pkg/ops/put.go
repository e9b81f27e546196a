package ops

import (
	"context"

	"github.com/nicklasfrahm/rcmd/pkg/engine"
)

// Put copies a local file to the selected hosts, decompressing it
// on the way.
func Put(ctx context.Context, localPath, remotePath string, options ...Option) error {
	return withEngine(ctx, options, func(eng *engine.Engine, opts *Options) error {
		return eng.Put(ctx, opts.Selector, localPath, remotePath, opts.Compression)
	})
}
