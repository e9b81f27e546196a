package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/nicklasfrahm/rcmd/pkg/sshx"
)

const (
	// SelectorAll is the selector that matches every host.
	SelectorAll = "all"
	// AliasPrefix marks a command as a reference to a named command.
	AliasPrefix = "@"
)

// Config describes a fleet of hosts and the commands that are
// commonly run on them.
type Config struct {
	// Defaults is merged into the SSH configuration of every
	// host. Values of the host take precedence.
	Defaults sshx.Config `yaml:"defaults"`

	// SSHProxy describes the SSH connection configuration
	// for an SSH proxy, often also referred to as bastion
	// host or jumpbox.
	SSHProxy sshx.Config `yaml:"ssh-proxy"`

	// KubeConfig is the kubeconfig used for pods that do not
	// specify their own.
	KubeConfig string `yaml:"kubeconfig"`

	// Hosts is the list of machines commands may run on.
	Hosts []Host `yaml:"hosts"`

	// Commands maps names to command lines. They are referenced
	// by prefixing the name with an "@".
	Commands map[string]string `yaml:"commands"`
}

// Verify verifies the configuration file.
func (c *Config) Verify() error {
	if c == nil {
		return errors.New("configuration empty")
	}

	checks := []func() error{
		c.verifyHostCount,
		c.verifyHostNames,
		c.verifyTransports,
		c.verifyCommands,
	}

	var errs []error
	for _, check := range checks {
		errs = append(errs, check())
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	return nil
}

func (c *Config) verifyHostCount() error {
	if len(c.Hosts) == 0 {
		return errors.New("no hosts specified")
	}
	return nil
}

func (c *Config) verifyHostNames() error {
	seen := make(map[string]bool, len(c.Hosts))
	var errs []error
	for i, host := range c.Hosts {
		switch {
		case host.Name == "":
			errs = append(errs, fmt.Errorf("host %d: name missing", i))
		case host.Name == SelectorAll:
			errs = append(errs, fmt.Errorf("host %d: name %q is reserved", i, SelectorAll))
		case strings.Contains(host.Name, ","):
			errs = append(errs, fmt.Errorf("host %q: name must not contain commas", host.Name))
		case seen[host.Name]:
			errs = append(errs, fmt.Errorf("host %q: duplicate name", host.Name))
		}
		seen[host.Name] = true
	}
	return errors.Join(errs...)
}

func (c *Config) verifyTransports() error {
	var errs []error
	for _, host := range c.Hosts {
		transports := 0
		if host.SSH != nil {
			transports++
			if host.SSH.Host == "" {
				errs = append(errs, fmt.Errorf("host %q: ssh host missing", host.Name))
			}
		}
		if host.Local {
			transports++
		}
		if host.Pod != nil {
			transports++
			if host.Pod.Name == "" {
				errs = append(errs, fmt.Errorf("host %q: pod name missing", host.Name))
			}
		}

		if transports != 1 {
			errs = append(errs, fmt.Errorf("host %q: exactly one of ssh, local or pod must be specified", host.Name))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) verifyCommands() error {
	var errs []error
	for name, line := range c.Commands {
		if name == "" || strings.HasPrefix(name, AliasPrefix) {
			errs = append(errs, fmt.Errorf("command %q: invalid name", name))
		}
		if strings.TrimSpace(line) == "" {
			errs = append(errs, fmt.Errorf("command %q: empty command", name))
		}
	}
	return errors.Join(errs...)
}

// applyDefaults fills in the values that a host leaves empty. It is
// safe to call more than once.
func (c *Config) applyDefaults() error {
	for i := range c.Hosts {
		host := &c.Hosts[i]

		if host.SSH != nil {
			if err := mergo.Merge(host.SSH, c.Defaults); err != nil {
				return err
			}
		}
		if host.Pod != nil && host.Pod.KubeConfig == "" {
			host.Pod.KubeConfig = c.KubeConfig
		}

		// Fall back to an address as the name of the host.
		if host.Name == "" {
			switch {
			case host.SSH != nil:
				host.Name = host.SSH.Host
			case host.Pod != nil:
				host.Name = host.Pod.Name
			case host.Local:
				host.Name = "localhost"
			}
		}
	}

	return nil
}

// LoadConfig sets up the configuration parser and loads
// the configuration file.
func LoadConfig(configFile string) (*Config, error) {
	configBytes, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	return ParseConfig(configBytes)
}

// ParseConfig parses a YAML configuration and applies the defaults.
func ParseConfig(configBytes []byte) (*Config, error) {
	config := new(Config)
	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return nil, err
	}

	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	return config, nil
}
