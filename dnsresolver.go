// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/runtimex"
	"github.com/miekg/dns"
)

// Default DNS server endpoints per transport.
const (
	dnsDefaultServerUDP = "8.8.8.8:53"
	dnsDefaultServerTCP = "8.8.8.8:53"
	dnsDefaultServerDoT = "8.8.8.8:853"
	dnsDefaultServerDoH = "8.8.8.8:443"
	dnsDefaultDoHURL    = "https://dns.google/dns-query"
)

// buildDNSResolver builds the resolver for the "dns" scheme.
//
// The endpoint is "host" or "host:port" with a numeric port (443 by
// default). An endpoint whose host is an IP literal short-circuits to
// a static resolver without any DNS I/O.
//
// The DNS transport is selected by [ArgDNSTransport] ("udp" by
// default); the server endpoint by [ArgDNSServer]; the TLS server
// name, for "dot" and "doh", by [ArgDNSServerName]; and the query URL,
// for "doh", by [ArgDNSDoHURL].
func buildDNSResolver(cfg *Config, target *Target, args *Args, logger SLogger) (Resolver, error) {
	// 1. Validate the endpoint
	//
	// The port check matters for targets that fell back to this scheme:
	// net.SplitHostPort("bogus://x") yields host "bogus" and port "//x"
	// without any error, so a bad host can hide inside the port.
	endpoint := strings.TrimPrefix(target.Endpoint, "/")
	host, port := splitHostPortDefault(endpoint, "443")
	_, portErr := strconv.ParseUint(port, 10, 16)
	if host == "" || strings.ContainsAny(host, "/ ") || portErr != nil {
		return nil, fmt.Errorf("grpc: invalid dns endpoint %q", target.Endpoint)
	}

	// 2. IP literals resolve to themselves
	if addr, err := netip.ParseAddr(host); err == nil {
		joined := net.JoinHostPort(addr.String(), port)
		return &staticResolver{addrs: []Address{{Network: "tcp", Addr: joined}}}, nil
	}

	// 3. Validate the transport selection
	transport := args.GetString(ArgDNSTransport)
	if transport == "" {
		transport = "udp"
	}
	var defaultServer string
	switch transport {
	case "udp":
		defaultServer = dnsDefaultServerUDP
	case "tcp":
		defaultServer = dnsDefaultServerTCP
	case "dot":
		defaultServer = dnsDefaultServerDoT
	case "doh":
		defaultServer = dnsDefaultServerDoH
	default:
		return nil, fmt.Errorf("grpc: unsupported dns transport %q", transport)
	}

	// 4. Validate the server endpoint
	server := args.GetString(ArgDNSServer)
	if server == "" {
		server = defaultServer
	}
	serverAddrPort, err := netip.ParseAddrPort(server)
	if err != nil {
		return nil, fmt.Errorf("grpc: parsing dns server %q: %w", server, err)
	}

	// 5. Compute the TLS server name and DoH URL
	dohURL := args.GetString(ArgDNSDoHURL)
	if dohURL == "" {
		dohURL = dnsDefaultDoHURL
	}
	serverName := args.GetString(ArgDNSServerName)
	if serverName == "" && transport == "doh" {
		if parsed, err := url.Parse(dohURL); err == nil {
			serverName = parsed.Hostname()
		}
	}
	if serverName == "" {
		serverName = serverAddrPort.Addr().String()
	}

	return &dnsResolver{
		cfg:        cfg,
		dohURL:     dohURL,
		host:       host,
		logger:     logger,
		port:       port,
		server:     serverAddrPort,
		serverName: serverName,
		transport:  transport,
	}, nil
}

// splitHostPortDefault splits "host:port", applying a default port
// when the input carries none.
func splitHostPortDefault(endpoint, defaultPort string) (string, string) {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, defaultPort
	}
	return host, port
}

// dnsResolver resolves a hostname by querying a DNS server directly
// over the configured transport.
type dnsResolver struct {
	// cfg is the common configuration.
	cfg *Config

	// dohURL is the DNS-over-HTTPS query URL.
	dohURL string

	// host is the hostname to resolve.
	host string

	// logger is the structured logger to use.
	logger SLogger

	// port is appended to each resolved address.
	port string

	// server is the DNS server endpoint.
	server netip.AddrPort

	// serverName is the TLS server name for "dot" and "doh".
	serverName string

	// transport is "udp", "tcp", "dot", or "doh".
	transport string
}

var _ Resolver = &dnsResolver{}

// Next implements [Resolver].
//
// Each call performs a fresh A-record lookup over the configured
// transport, connecting to the DNS server and tearing the connection
// down before returning.
func (r *dnsResolver) Next(ctx context.Context) ([]Address, error) {
	query := dnscodec.NewQuery(r.host, dns.TypeA)
	resp, err := r.exchange(ctx, query)
	if err != nil {
		return nil, err
	}
	records, err := resp.RecordsA()
	if err != nil {
		return nil, err
	}
	if len(records) <= 0 {
		return nil, fmt.Errorf("grpc: no addresses for %q", r.host)
	}
	var addrs []Address
	for _, ip := range records {
		addrs = append(addrs, Address{Network: "tcp", Addr: net.JoinHostPort(ip, r.port)})
	}
	return addrs, nil
}

// Close implements [Resolver].
func (r *dnsResolver) Close() error {
	return nil
}

// exchange performs one DNS exchange over the configured transport.
func (r *dnsResolver) exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	switch r.transport {
	case "udp":
		conn, err := dialContext(ctx, r.cfg, "udp", r.server.String(), r.logger)
		if err != nil {
			return nil, err
		}
		dnsConn := newDNSOverUDPConn(r.cfg, conn, r.logger)
		defer dnsConn.Close()
		return dnsConn.Exchange(ctx, query)

	case "tcp":
		conn, err := dialContext(ctx, r.cfg, "tcp", r.server.String(), r.logger)
		if err != nil {
			return nil, err
		}
		dnsConn := newDNSOverTCPConn(r.cfg, conn, r.logger)
		defer dnsConn.Close()
		return dnsConn.Exchange(ctx, query)

	case "dot":
		tconn, err := r.handshake(ctx)
		if err != nil {
			return nil, err
		}
		dnsConn := newDNSOverTLSConn(r.cfg, tconn, r.logger)
		defer dnsConn.Close()
		return dnsConn.Exchange(ctx, query)

	case "doh":
		tconn, err := r.handshake(ctx)
		if err != nil {
			return nil, err
		}
		txp := newTransport(r.cfg, tconn, r.logger)
		dnsConn := newDNSOverHTTPSConn(r.cfg, txp, r.dohURL, r.logger)
		defer dnsConn.Close()
		return dnsConn.Exchange(ctx, query)

	default:
		panic(fmt.Sprintf("grpc: unknown dns transport %q", r.transport))
	}
}

// handshake dials the DNS server over TCP and secures the connection.
//
// Returns either a valid [TLSConn] or an error, never both.
func (r *dnsResolver) handshake(ctx context.Context) (TLSConn, error) {
	runtimex.Assert(r.transport == "dot" || r.transport == "doh")
	conn, err := dialContext(ctx, r.cfg, "tcp", r.server.String(), r.logger)
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{ServerName: r.serverName}
	if r.transport == "doh" {
		tlsConfig.NextProtos = []string{"h2", "http/1.1"}
	}
	hs := &tlsHandshaker{
		Config:        tlsConfig,
		Engine:        TLSEngineStdlib{},
		ErrClassifier: r.cfg.ErrClassifier,
		Logger:        r.logger,
		TimeNow:       r.cfg.TimeNow,
	}
	return hs.handshakeTLS(ctx, conn)
}
