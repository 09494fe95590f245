// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

// Well-known configuration keys.
const (
	// ArgSecurityConnector is the key of the [ArgKindRef] entry that
	// threads a [SecurityConnector] into channel configuration.
	ArgSecurityConnector = "grpc.security_connector"

	// ArgDefaultAuthority is the key of the [ArgKindString] entry that
	// overrides the authority sent on outgoing requests.
	ArgDefaultAuthority = "grpc.default_authority"

	// ArgSSLTargetNameOverride is the key of the [ArgKindString] entry
	// that overrides the server name verified during the TLS handshake.
	ArgSSLTargetNameOverride = "grpc.ssl_target_name_override"

	// ArgHTTP2Scheme is the key of the [ArgKindString] entry holding the
	// ":scheme" pseudo-header value for outgoing requests. TLS
	// credentials set it to "https" through their replacement table.
	ArgHTTP2Scheme = "grpc.http2_scheme"

	// ArgDNSTransport is the key of the [ArgKindString] entry that
	// selects the DNS transport: "udp", "tcp", "dot", or "doh".
	ArgDNSTransport = "grpc.dns_transport"

	// ArgDNSServer is the key of the [ArgKindString] entry holding the
	// DNS server endpoint as "address:port".
	ArgDNSServer = "grpc.dns_server"

	// ArgDNSServerName is the key of the [ArgKindString] entry that
	// overrides the server name verified when the DNS transport uses TLS.
	ArgDNSServerName = "grpc.dns_server_name"

	// ArgDNSDoHURL is the key of the [ArgKindString] entry holding the
	// DNS-over-HTTPS query URL.
	ArgDNSDoHURL = "grpc.dns_doh_url"
)

// ArgKind identifies which value field of an [Arg] is meaningful.
type ArgKind uint8

const (
	// ArgKindString marks an [Arg] carrying a string value.
	ArgKindString ArgKind = iota

	// ArgKindInt marks an [Arg] carrying an integer value.
	ArgKindInt

	// ArgKindRef marks an [Arg] carrying a shared [RefValue].
	ArgKindRef
)

// StringArg creates an [Arg] template carrying a string value.
func StringArg(key, value string) Arg {
	return Arg{Kind: ArgKindString, Key: key, Str: value}
}

// IntArg creates an [Arg] template carrying an integer value.
func IntArg(key string, value int) Arg {
	return Arg{Kind: ArgKindInt, Key: key, Int: value}
}

// RefArg creates an [Arg] template carrying a shared [RefValue].
func RefArg(key string, value RefValue) Arg {
	return Arg{Kind: ArgKindRef, Key: key, Ref: value}
}

// Arg is a single configuration entry.
//
// An [Arg] value is a non-owning template: it does not hold a stake in
// its [RefValue], if any. Tables acquire their own stakes when entries
// are incorporated via [NewArgs] or [Args.CopyAndAdd].
//
// Exactly one of the value fields is meaningful, selected by Kind.
type Arg struct {
	// Kind selects the meaningful value field.
	Kind ArgKind

	// Key is the entry key.
	Key string

	// Str is the value for [ArgKindString] entries.
	Str string

	// Int is the value for [ArgKindInt] entries.
	Int int

	// Ref is the value for [ArgKindRef] entries.
	Ref RefValue
}

// NewArgs builds an [*Args] table from the given entry templates.
//
// The table acquires its own stake in every [ArgKindRef] entry. Call
// [Args.Destroy] when done with the table to drop those stakes.
func NewArgs(entries ...Arg) *Args {
	table := &Args{entries: make([]Arg, 0, len(entries))}
	for _, entry := range entries {
		table.add(entry)
	}
	return table
}

// Args is an immutable, ordered configuration table.
//
// Merging always produces a new table via [Args.CopyAndAdd], never
// mutates an existing one in place. Each table owns one stake per
// [ArgKindRef] entry, acquired at construction and dropped by
// [Args.Destroy]. Destroying a table twice double-releases those
// stakes and panics.
//
// A nil [*Args] behaves like an empty table.
type Args struct {
	entries []Arg
}

// add appends an entry, acquiring a stake for ref entries.
func (a *Args) add(entry Arg) {
	if entry.Kind == ArgKindRef && entry.Ref != nil {
		entry.Ref.Retain()
	}
	a.entries = append(a.entries, entry)
}

// Len returns the number of entries in the table.
func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

// Get returns the first entry with the given key.
//
// The returned entry is a borrowed template: no stake is transferred.
func (a *Args) Get(key string) (Arg, bool) {
	if a == nil {
		return Arg{}, false
	}
	for _, entry := range a.entries {
		if entry.Key == key {
			return entry, true
		}
	}
	return Arg{}, false
}

// GetString returns the string value of the first entry with the
// given key, or the empty string when absent or not a string.
func (a *Args) GetString(key string) string {
	entry, found := a.Get(key)
	if !found || entry.Kind != ArgKindString {
		return ""
	}
	return entry.Str
}

// GetInt returns the integer value of the first entry with the given
// key, or the given fallback when absent or not an integer.
func (a *Args) GetInt(key string, fallback int) int {
	entry, found := a.Get(key)
	if !found || entry.Kind != ArgKindInt {
		return fallback
	}
	return entry.Int
}

// Entries returns a copy of the entry templates in table order.
//
// The returned entries are borrowed templates: no stakes are
// transferred to the caller.
func (a *Args) Entries() []Arg {
	if a == nil {
		return nil
	}
	out := make([]Arg, len(a.entries))
	copy(out, a.entries)
	return out
}

// CopyAndAdd returns a new table containing this table's entries
// followed by the extra entries.
//
// The new table acquires its own stake in every [ArgKindRef] entry it
// incorporates, from both sources. Neither input is mutated and the
// receiver's stakes are untouched. A nil receiver copies as empty.
func (a *Args) CopyAndAdd(extra ...Arg) *Args {
	table := &Args{entries: make([]Arg, 0, a.Len()+len(extra))}
	if a != nil {
		for _, entry := range a.entries {
			table.add(entry)
		}
	}
	for _, entry := range extra {
		table.add(entry)
	}
	return table
}

// Destroy drops the table's stake in every [ArgKindRef] entry.
//
// Call exactly once per table. A nil receiver is a no-op.
func (a *Args) Destroy() {
	if a == nil {
		return
	}
	for _, entry := range a.entries {
		if entry.Kind == ArgKindRef && entry.Ref != nil {
			entry.Ref.Release()
		}
	}
}
