// ABOUTME: Corefile parser and plugin registration for dyndns.
// ABOUTME: Builds the Zone backend, Reconciler and update server, and wires their lifecycle.

package dyndns

import (
	"fmt"
	"time"

	"github.com/coredns/caddy"
	"github.com/coredns/coredns/core/dnsserver"
	"github.com/coredns/coredns/plugin"
)

func init() { plugin.Register(pluginName, setup) }

// pluginConfig holds parsed Corefile configuration. Everything the plugin
// needs, credentials included, comes from here.
type pluginConfig struct {
	zones    []string
	datafile string
	reload   time.Duration

	listen   string
	user     string
	password string
	tls      *tlsConfig

	readErrors ReadErrorPolicy
	cfToken    string
	fallArgs   []string
}

func setup(c *caddy.Controller) error {
	cfg, err := parseConfig(c)
	if err != nil {
		return plugin.Error(pluginName, err)
	}

	d := &DynDNS{Zones: cfg.zones}
	if cfg.fallArgs != nil {
		d.Fall.SetZonesFromArgs(cfg.fallArgs)
	}

	var zone Zone
	if cfg.cfToken != "" {
		cz, err := NewCloudflareZone(cfg.cfToken, cfg.zones)
		if err != nil {
			return plugin.Error(pluginName, err)
		}
		zone = cz
	} else {
		store, err := NewStore(cfg.datafile, cfg.reload)
		if err != nil {
			return plugin.Error(pluginName, fmt.Errorf("creating store: %w", err))
		}
		d.Store = store
		zone = NewStoreZone(store)
	}

	reconciler := NewReconciler(zone, WithReadErrorPolicy(cfg.readErrors))
	auth := &Auth{User: cfg.user, Password: cfg.password}
	srv := NewUpdateServer(reconciler, auth, cfg.zones, cfg.listen, cfg.tls)

	c.OnStartup(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("starting update server: %w", err)
		}
		log.Infof("dyndns2 update endpoint listening on %s", cfg.listen)
		return nil
	})

	c.OnShutdown(func() error {
		srv.Stop()
		if d.Store != nil {
			d.Store.Stop()
		}
		return nil
	})

	dnsserver.GetConfig(c).AddPlugin(func(next plugin.Handler) plugin.Handler {
		d.Next = next
		return d
	})

	return nil
}

func parseConfig(c *caddy.Controller) (*pluginConfig, error) {
	cfg := &pluginConfig{}

	c.Next() // skip "dyndns"

	cfg.zones = c.RemainingArgs()
	if len(cfg.zones) == 0 {
		cfg.zones = make([]string, len(c.ServerBlockKeys))
		copy(cfg.zones, c.ServerBlockKeys)
	}

	var normalized []string
	for _, z := range cfg.zones {
		normalized = append(normalized, plugin.Host(z).NormalizeExact()...)
	}
	cfg.zones = normalized

	for c.NextBlock() {
		switch c.Val() {
		case "datafile":
			if !c.NextArg() {
				return nil, fmt.Errorf("datafile requires a path argument")
			}
			cfg.datafile = c.Val()

		case "reload":
			if !c.NextArg() {
				return nil, fmt.Errorf("reload requires a duration argument")
			}
			d, err := time.ParseDuration(c.Val())
			if err != nil {
				return nil, fmt.Errorf("invalid reload duration %q: %w", c.Val(), err)
			}
			cfg.reload = d

		case "listen":
			if !c.NextArg() {
				return nil, fmt.Errorf("listen requires an address")
			}
			cfg.listen = c.Val()

		case "user":
			if !c.NextArg() {
				return nil, fmt.Errorf("user requires a value")
			}
			cfg.user = c.Val()

		case "password":
			if !c.NextArg() {
				return nil, fmt.Errorf("password requires a value")
			}
			cfg.password = c.Val()

		case "tls":
			args := c.RemainingArgs()
			if len(args) != 2 && len(args) != 3 {
				return nil, fmt.Errorf("tls requires CERT KEY [CA] arguments")
			}
			cfg.tls = &tlsConfig{cert: args[0], key: args[1]}
			if len(args) == 3 {
				cfg.tls.ca = args[2]
			}

		case "read_error":
			if !c.NextArg() {
				return nil, fmt.Errorf("read_error requires an argument")
			}
			p, err := ParseReadErrorPolicy(c.Val())
			if err != nil {
				return nil, err
			}
			cfg.readErrors = p

		case "cloudflare":
			if err := parseNestedBlock(c, func(key string, c *caddy.Controller) error {
				return parseCloudflareDirective(key, c, cfg)
			}); err != nil {
				return nil, err
			}
			if cfg.cfToken == "" {
				return nil, fmt.Errorf("cloudflare block requires a token")
			}

		case "fallthrough":
			cfg.fallArgs = c.RemainingArgs()

		default:
			return nil, fmt.Errorf("unknown directive %q", c.Val())
		}
	}

	if cfg.listen == "" {
		return nil, fmt.Errorf("listen is required")
	}
	if cfg.user == "" || cfg.password == "" {
		return nil, fmt.Errorf("user and password are required")
	}
	switch {
	case cfg.cfToken != "" && cfg.datafile != "":
		return nil, fmt.Errorf("datafile and cloudflare are mutually exclusive")
	case cfg.cfToken == "" && cfg.datafile == "":
		return nil, fmt.Errorf("datafile is required")
	}

	return cfg, nil
}

// parseNestedBlock manually handles Caddy v1 nested block parsing.
// It consumes the opening `{`, iterates over directives, and stops at `}`.
func parseNestedBlock(c *caddy.Controller, handler func(string, *caddy.Controller) error) error {
	if !c.Next() {
		return nil
	}
	if c.Val() != "{" {
		return handler(c.Val(), c)
	}

	for c.Next() {
		if c.Val() == "}" {
			return nil
		}
		if err := handler(c.Val(), c); err != nil {
			return err
		}
	}
	return nil
}

func parseCloudflareDirective(key string, c *caddy.Controller, cfg *pluginConfig) error {
	switch key {
	case "token":
		if !c.NextArg() {
			return fmt.Errorf("cloudflare token requires a value")
		}
		cfg.cfToken = c.Val()
	default:
		return fmt.Errorf("unknown cloudflare directive %q", key)
	}
	return nil
}
