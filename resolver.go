// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownScheme indicates that no registered resolver supports the
// target scheme, even after applying the default "dns" scheme.
var ErrUnknownScheme = errors.New("grpc: no resolver for target scheme")

// Resolver resolves a channel target to addresses over time.
//
// Channels own their resolver exclusively and call [Resolver.Close]
// exactly once during teardown.
type Resolver interface {
	// Next returns the address list for the target, performing I/O as
	// needed. Static resolvers return the same list on every call;
	// DNS resolvers query again. Returns a non-empty list or an error.
	Next(ctx context.Context) ([]Address, error)

	// Close releases resolver resources.
	Close() error
}

// Target is a parsed channel target.
type Target struct {
	// Scheme selects the resolver (e.g., "dns", "ipv4", "unix").
	Scheme string

	// Authority is the optional authority component.
	Authority string

	// Endpoint is the scheme-specific endpoint to resolve.
	Endpoint string
}

// String returns the canonical "scheme://authority/endpoint" form.
func (t *Target) String() string {
	return fmt.Sprintf("%s://%s/%s", t.Scheme, t.Authority, t.Endpoint)
}

// ParseTarget parses a channel target string.
//
// Accepted forms are "scheme://authority/endpoint" (e.g.,
// "dns:///service.example.com:443") and "scheme:opaque" (e.g.,
// "ipv4:10.0.0.1:443", "unix:/run/app.sock"). Whether the scheme is
// supported is decided later by the [*ResolverRegistry].
//
// The endpoint keeps any leading slash from the path form, so that
// filesystem endpoints stay intact; builders for host-based schemes
// trim it.
func ParseTarget(target string) (*Target, error) {
	if target == "" {
		return nil, errors.New("grpc: empty target")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("grpc: parsing target %q: %w", target, err)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("grpc: target %q has no scheme", target)
	}
	endpoint := parsed.Opaque
	if endpoint == "" {
		endpoint = parsed.Path
	}
	return &Target{
		Scheme:    parsed.Scheme,
		Authority: parsed.Host,
		Endpoint:  endpoint,
	}, nil
}

// ResolverBuilder creates the [Resolver] for one target scheme.
type ResolverBuilder interface {
	BuildResolver(cfg *Config, target *Target, args *Args, logger SLogger) (Resolver, error)
}

// ResolverBuilderFunc adapts a function to the [ResolverBuilder] interface.
type ResolverBuilderFunc func(cfg *Config, target *Target, args *Args, logger SLogger) (Resolver, error)

var _ ResolverBuilder = ResolverBuilderFunc(nil)

// BuildResolver implements [ResolverBuilder].
func (f ResolverBuilderFunc) BuildResolver(
	cfg *Config, target *Target, args *Args, logger SLogger) (Resolver, error) {
	return f(cfg, target, args, logger)
}

// NewResolverRegistry creates a [*ResolverRegistry] with the "dns",
// "ipv4", "ipv6", and "unix" schemes pre-registered and "dns" as the
// default scheme.
func NewResolverRegistry() *ResolverRegistry {
	r := &ResolverRegistry{
		builders:      make(map[string]ResolverBuilder),
		defaultScheme: "dns",
		mu:            sync.RWMutex{},
	}
	r.Register("dns", ResolverBuilderFunc(buildDNSResolver))
	r.Register("ipv4", ResolverBuilderFunc(buildSockaddrResolver))
	r.Register("ipv6", ResolverBuilderFunc(buildSockaddrResolver))
	r.Register("unix", ResolverBuilderFunc(buildUnixResolver))
	return r
}

// ResolverRegistry maps target schemes to resolver builders.
//
// Registration and lookup are safe for concurrent use.
type ResolverRegistry struct {
	// builders maps scheme to builder.
	builders map[string]ResolverBuilder

	// defaultScheme is applied when the target scheme is unregistered.
	defaultScheme string

	// mu protects builders.
	mu sync.RWMutex
}

// Register binds a scheme to a builder, replacing any previous binding.
func (r *ResolverRegistry) Register(scheme string, builder ResolverBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[scheme] = builder
}

// lookup returns the builder for scheme, or nil.
func (r *ResolverRegistry) lookup(scheme string) ResolverBuilder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builders[scheme]
}

// Build parses target, selects a builder by scheme, and builds the
// resolver.
//
// When the target does not parse, or parses to an unregistered scheme,
// Build retries with the default scheme applied to the whole target
// string ("host:port" becomes "dns:///host:port"). Returns the
// resolver and the parsed target, or an error.
func (r *ResolverRegistry) Build(cfg *Config, target string,
	args *Args, logger SLogger) (Resolver, *Target, error) {
	parsed, err := ParseTarget(target)
	if err != nil || r.lookup(parsed.Scheme) == nil {
		parsed = &Target{
			Scheme:    r.defaultScheme,
			Authority: "",
			Endpoint:  target,
		}
	}
	builder := r.lookup(parsed.Scheme)
	if builder == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownScheme, parsed.Scheme)
	}
	resolver, err := builder.BuildResolver(cfg, parsed, args, logger)
	if err != nil {
		return nil, nil, err
	}
	return resolver, parsed, nil
}

// buildSockaddrResolver builds the resolver for the "ipv4" and "ipv6"
// schemes, whose endpoint is a comma-separated list of "address:port".
func buildSockaddrResolver(cfg *Config, target *Target, args *Args, logger SLogger) (Resolver, error) {
	var addrs []Address
	endpoint := strings.TrimPrefix(target.Endpoint, "/")
	for _, entry := range strings.Split(endpoint, ",") {
		addrPort, err := netip.ParseAddrPort(entry)
		if err != nil {
			return nil, fmt.Errorf("grpc: parsing %q address %q: %w", target.Scheme, entry, err)
		}
		is4 := addrPort.Addr().Unmap().Is4()
		if target.Scheme == "ipv4" && !is4 {
			return nil, fmt.Errorf("grpc: address %q is not IPv4", entry)
		}
		if target.Scheme == "ipv6" && is4 {
			return nil, fmt.Errorf("grpc: address %q is not IPv6", entry)
		}
		addrs = append(addrs, Address{Network: "tcp", Addr: addrPort.String()})
	}
	return &staticResolver{addrs: addrs}, nil
}

// buildUnixResolver builds the resolver for the "unix" scheme, whose
// endpoint is a filesystem path.
func buildUnixResolver(cfg *Config, target *Target, args *Args, logger SLogger) (Resolver, error) {
	if target.Endpoint == "" {
		return nil, errors.New("grpc: unix target requires a path")
	}
	return &staticResolver{addrs: []Address{{Network: "unix", Addr: target.Endpoint}}}, nil
}

// staticResolver returns a fixed address list on every call.
type staticResolver struct {
	addrs []Address
}

var _ Resolver = &staticResolver{}

// Next implements [Resolver].
func (r *staticResolver) Next(ctx context.Context) ([]Address, error) {
	return slices.Clone(r.addrs), nil
}

// Close implements [Resolver].
func (r *staticResolver) Close() error {
	return nil
}
