package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/rcmd/pkg/imagefile"
	"github.com/nicklasfrahm/rcmd/pkg/rexec"
	"github.com/nicklasfrahm/rcmd/pkg/shell"
	"github.com/nicklasfrahm/rcmd/pkg/sshx"
)

var (
	// ErrNoSpec is returned when the engine is used before SetSpec.
	ErrNoSpec = errors.New("no configuration set")
	// ErrNoMatch is returned when a selector matches no host.
	ErrNoMatch = errors.New("selector matches no host")
	// ErrUnknownCommand is returned for references to commands that
	// are not configured.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUploadUnsupported is returned for hosts that can not
	// receive files.
	ErrUploadUnsupported = errors.New("upload not supported")
)

// HostResult is the outcome of a command on a single host.
type HostResult struct {
	Host   string
	Result *rexec.Result
	Err    error
}

// Engine runs commands on a fleet of hosts.
type Engine struct {
	Logger *zerolog.Logger
	Spec   *Config

	options   *Options
	hostnames rexec.HostnameCache
	registry  *imagefile.Registry
}

// New creates a new Engine.
func New(options ...Option) (*Engine, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Logger:   opts.Logger,
		options:  opts,
		registry: imagefile.DefaultRegistry(),
	}, nil
}

// SetSpec configures the fleet. Note that the config will only be
// applied if the verification succeeds.
func (e *Engine) SetSpec(config *Config) error {
	if err := config.applyDefaults(); err != nil {
		return err
	}
	if err := config.Verify(); err != nil {
		return err
	}

	// Inject a logger into every host.
	for i := range config.Hosts {
		host := &config.Hosts[i]
		host.Logger = e.Logger.With().Str("host", host.Name).Logger()
	}

	e.Spec = config

	return nil
}

// FilterHosts returns the hosts matched by the selector, in the order
// of the configuration. The selector is a comma-separated list of host
// names and groups. An empty selector or "all" matches every host.
func (e *Engine) FilterHosts(selector string) ([]*Host, error) {
	if e.Spec == nil {
		return nil, ErrNoSpec
	}

	parts := strings.Split(selector, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) == 1 && parts[0] == "" {
		parts[0] = SelectorAll
	}

	matched := make([]bool, len(e.Spec.Hosts))
	for _, part := range parts {
		if part == "" {
			continue
		}

		found := false
		for i := range e.Spec.Hosts {
			if e.Spec.Hosts[i].Matches(part) {
				matched[i] = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrNoMatch, part)
		}
	}

	// Pointers into the configuration are returned because the hosts hold
	// the connection state.
	var hosts []*Host
	for i := range e.Spec.Hosts {
		if matched[i] {
			hosts = append(hosts, &e.Spec.Hosts[i])
		}
	}

	if len(hosts) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, selector)
	}

	return hosts, nil
}

// Command converts a value into a command. A string that starts with
// "@" refers to a configured command, optionally followed by extra
// arguments.
func (e *Engine) Command(v any) (shell.Command, error) {
	line, ok := v.(string)
	if !ok || !strings.HasPrefix(line, AliasPrefix) {
		return shell.NewCommand(v)
	}

	name, extra, _ := strings.Cut(strings.TrimPrefix(line, AliasPrefix), " ")
	var aliased string
	var found bool
	if e.Spec != nil {
		aliased, found = e.Spec.Commands[name]
	}
	if !found {
		return shell.Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	cmd, err := shell.NewCommand(aliased)
	if err != nil {
		return shell.Command{}, fmt.Errorf("command %q: %w", name, err)
	}

	return cmd.Concat(extra)
}

// Connect establishes a connection to the selected hosts.
func (e *Engine) Connect(ctx context.Context, selector string) error {
	hosts, err := e.FilterHosts(selector)
	if err != nil {
		return err
	}

	// Use the proxy of the configuration, if one is specified.
	proxy := e.options.SSHProxy
	if e.Spec.SSHProxy.Host != "" {
		proxy = &e.Spec.SSHProxy
	}

	return e.joinErrors(hosts, e.each(ctx, hosts, func(ctx context.Context, _ int, host *Host) error {
		var hostProxy *sshx.Config
		if proxy != nil {
			// Every host dials its own connection to the proxy.
			copied := *proxy
			hostProxy = &copied
		}

		return host.Connect(ctx,
			WithLogger(&host.Logger),
			WithSSHProxy(hostProxy),
			WithTimeout(e.options.Timeout),
			WithRetries(e.options.Retries, e.options.RetryInterval),
		)
	}))
}

// Run executes a command on all selected hosts at the same time. The
// results are returned in the order of the configuration, including
// those of hosts where the command failed. The error joins the errors
// of all hosts.
func (e *Engine) Run(ctx context.Context, selector string, v any, options ...rexec.ExecOption) ([]HostResult, error) {
	cmd, err := e.Command(v)
	if err != nil {
		return nil, err
	}

	hosts, err := e.FilterHosts(selector)
	if err != nil {
		return nil, err
	}

	opts, err := rexec.GetDefaultExecOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	// Every host needs its own copy of the standard input.
	var stdin []byte
	if opts.Stdin != nil {
		if stdin, err = io.ReadAll(opts.Stdin); err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	results := make([]HostResult, len(hosts))
	for i, host := range hosts {
		results[i].Host = host.Name
	}

	errs := e.each(ctx, hosts, func(ctx context.Context, i int, host *Host) error {
		if !host.Connected() {
			results[i].Err = rexec.ErrNotConnected
			return results[i].Err
		}

		hostOptions := options
		if opts.Stdin != nil {
			hostOptions = append(hostOptions[:len(hostOptions):len(hostOptions)], rexec.WithStdin(bytes.NewReader(stdin)))
		}

		host.Logger.Debug().Stringer("command", cmd).Msg("Running command")
		result, err := host.Runner.Run(ctx, cmd, hostOptions...)
		results[i].Result = result
		results[i].Err = err
		if result != nil {
			host.Logger.Info().Stringer("command", cmd).Int("status", result.ExitStatus).Msg("Command finished")
		}

		return err
	})

	// Hosts that never got to run carry the error that stopped them.
	for i, err := range errs {
		if results[i].Err == nil {
			results[i].Err = err
		}
	}

	return results, e.joinErrors(hosts, errs)
}

// Hostnames returns the hostnames of the selected hosts by their name.
// If fqdn is set, fully qualified domain names are returned.
func (e *Engine) Hostnames(ctx context.Context, selector string, fqdn bool) (map[string]string, error) {
	hosts, err := e.FilterHosts(selector)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	hostnames := make(map[string]string, len(hosts))
	errs := e.each(ctx, hosts, func(ctx context.Context, _ int, host *Host) error {
		if !host.Connected() {
			return rexec.ErrNotConnected
		}

		hostname, err := e.hostnames.Hostname(ctx, host.Runner, fqdn)
		if err != nil {
			return err
		}

		mu.Lock()
		hostnames[host.Name] = hostname
		mu.Unlock()

		return nil
	})

	return hostnames, e.joinErrors(hosts, errs)
}

// Put copies a local file to the selected hosts. The file is
// decompressed on the fly, using the given compression or the one
// detected from its content.
func (e *Engine) Put(ctx context.Context, selector, localPath, remotePath string, compression imagefile.Compression) error {
	hosts, err := e.FilterHosts(selector)
	if err != nil {
		return err
	}

	return e.joinErrors(hosts, e.each(ctx, hosts, func(ctx context.Context, _ int, host *Host) error {
		if !host.Connected() {
			return rexec.ErrNotConnected
		}

		uploader, ok := host.Runner.(rexec.Uploader)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUploadUnsupported, host.Runner)
		}

		// Every host reads the file on its own.
		file, err := imagefile.Open(localPath, e.registry, compression, imagefile.WithLogger(&host.Logger))
		if err != nil {
			return err
		}
		defer file.Close()

		host.Logger.Info().Str("path", remotePath).Str("compression", string(file.Compression)).Msg("Uploading file")

		return uploader.Upload(ctx, remotePath, file)
	}))
}

// Disconnect closes the connections to all hosts.
func (e *Engine) Disconnect() error {
	if e.Spec == nil {
		return nil
	}

	var errs []error
	for i := range e.Spec.Hosts {
		host := &e.Spec.Hosts[i]
		if !host.Connected() {
			continue
		}

		e.hostnames.Forget(host.Runner)
		if err := host.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host.Name, err))
		}
	}

	return errors.Join(errs...)
}

// each calls fn for every host at the same time, bounded by the
// configured concurrency. The returned slice holds the error of every
// host, including hosts that were cancelled while waiting for a slot.
func (e *Engine) each(ctx context.Context, hosts []*Host, fn func(ctx context.Context, i int, host *Host) error) []error {
	var sem chan struct{}
	if e.options.Concurrency > 0 {
		sem = make(chan struct{}, e.options.Concurrency)
	}

	errs := make([]error, len(hosts))
	wg := sync.WaitGroup{}
	for i, host := range hosts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					errs[i] = ctx.Err()
					return
				}
			}

			if err := fn(ctx, i, host); err != nil {
				host.Logger.Error().Err(err).Msg("Operation failed")
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	return errs
}

// joinErrors prefixes the error of every host with its name.
func (e *Engine) joinErrors(hosts []*Host, errs []error) error {
	var joined []error
	for i, err := range errs {
		if err != nil {
			joined = append(joined, fmt.Errorf("%s: %w", hosts[i].Name, err))
		}
	}

	return errors.Join(joined...)
}
