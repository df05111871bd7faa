// Package safeurl normalizes and screens URLs before any network access.
// Every fetch in the pipeline, including redirect targets and discovered
// links, passes through the Validator to block SSRF routes.
package safeurl

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/berginj/glovebrand/internal/branding"
)

// Resolver looks up the IP addresses for a hostname. The standard library
// net.Resolver satisfies it; tests supply a fixed table.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Config controls blocked hosts and ports beyond the built-in tables.
// AllowPrivate disables the address-range tables for local development
// against test fixtures; the scheme, credential, port and host blocklist
// checks still apply.
type Config struct {
	BlockedHosts    []string
	BlockedSuffixes []string
	BlockedPorts    []int
	AllowPrivate    bool
}

// Validator rejects URLs that are malformed or resolve somewhere unsafe.
type Validator struct {
	resolver        Resolver
	blockedExact    map[string]struct{}
	blockedSuffixes []string
	blockedPorts    map[string]struct{}
	allowPrivate    bool
}

var defaultBlockedHosts = []string{
	"localhost",
	"metadata.google.internal",
	"metadata",
}

var defaultBlockedSuffixes = []string{
	".internal",
	".local",
	".localdomain",
}

// New builds a Validator. A nil resolver uses net.DefaultResolver.
func New(resolver Resolver, cfg Config) *Validator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	v := &Validator{
		resolver:     resolver,
		blockedExact: make(map[string]struct{}),
		blockedPorts: make(map[string]struct{}),
		allowPrivate: cfg.AllowPrivate,
	}
	for _, host := range append(defaultBlockedHosts, cfg.BlockedHosts...) {
		v.blockedExact[strings.ToLower(strings.TrimSpace(host))] = struct{}{}
	}
	v.blockedSuffixes = append(v.blockedSuffixes, defaultBlockedSuffixes...)
	for _, s := range cfg.BlockedSuffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		if s != "" {
			v.blockedSuffixes = append(v.blockedSuffixes, s)
		}
	}
	for _, p := range cfg.BlockedPorts {
		v.blockedPorts[fmt.Sprintf("%d", p)] = struct{}{}
	}
	return v
}

// Normalize adds a missing https scheme, lowercases scheme and host, strips
// default ports and fragments, and re-encodes the query.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}

// Validate normalizes the URL and checks it against the SSRF policy,
// returning the normalized form on success.
func (v *Validator) Validate(ctx context.Context, raw string) (string, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return "", branding.NewError(branding.KindValidation, "validate", "malformed url", err)
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return "", branding.NewError(branding.KindValidation, "validate", "malformed url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", v.reject("only http/https URLs are allowed")
	}
	if u.User != nil {
		return "", v.reject("credentials in URL are not allowed")
	}
	host := u.Hostname()
	if host == "" {
		return "", v.reject("missing hostname")
	}
	if port := u.Port(); port != "" {
		if _, blocked := v.blockedPorts[port]; blocked {
			return "", v.reject(fmt.Sprintf("port %s is blocked", port))
		}
	}
	if v.hostBlocked(host) {
		return "", v.reject(fmt.Sprintf("host %q is blocked", host))
	}

	// IP literals skip DNS and go straight to the range tables.
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if !v.allowPrivate && unsafeAddr(addr) {
			return "", v.reject("address is in a private or reserved range")
		}
		return normalized, nil
	}

	addrs, err := v.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return "", branding.NewError(branding.KindValidation, "validate", fmt.Sprintf("hostname %q did not resolve", host), err)
	}
	if len(addrs) == 0 {
		return "", v.reject(fmt.Sprintf("hostname %q did not resolve", host))
	}
	for _, addr := range addrs {
		if !v.allowPrivate && unsafeAddr(addr) {
			return "", v.reject(fmt.Sprintf("hostname %q resolves to a private or reserved address", host))
		}
	}
	return normalized, nil
}

func (v *Validator) reject(reason string) error {
	return branding.NewError(branding.KindValidation, "validate", reason, nil)
}

func (v *Validator) hostBlocked(host string) bool {
	host = strings.ToLower(host)
	if _, ok := v.blockedExact[host]; ok {
		return true
	}
	for _, suffix := range v.blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// metadataV4 is the cloud metadata endpoint shared by the major providers.
var metadataV4 = netip.AddrFrom4([4]byte{169, 254, 169, 254})

func unsafeAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr == metadataV4 {
		return true
	}
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		addr.IsMulticast()
}
