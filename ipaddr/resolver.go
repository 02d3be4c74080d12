// Package ipaddr resolves the caller's current public IP address via an
// external HTTP lookup service.
package ipaddr

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"go4.org/netipx"

	aerrors "github.com/botsarefuture/hetzner-firewall/app/errors"
)

// DefaultLookupURL is the public-IP lookup endpoint used unless configured
// otherwise.
const DefaultLookupURL = "https://api.ipify.org?format=json"

// Resolver obtains the caller's current public address.
type Resolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// HTTPResolver resolves the public address by querying an ipify-style JSON
// endpoint. It performs no retries; a failure is surfaced to the caller and
// is fatal to the run.
type HTTPResolver struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

var _ Resolver = (*HTTPResolver)(nil)

// NewHTTPResolver returns a new HTTPResolver querying the given endpoint.
func NewHTTPResolver(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPResolver {
	if endpoint == "" {
		endpoint = DefaultLookupURL
	}
	return &HTTPResolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "ip-resolver"),
	}
}

// Resolve performs the lookup and validates that the answer is a public
// IPv4 unicast address.
func (r *HTTPResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	errFields := []any{"url", r.endpoint, "method", http.MethodGet}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return netip.Addr{}, aerrors.Wrap(aerrors.KindNetwork, "failed creating lookup request", err, errFields...)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return netip.Addr{}, aerrors.Wrap(aerrors.KindNetwork, "failed querying IP lookup service", err, errFields...)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response body.

	errFields = append(errFields, "status_code", resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, aerrors.New(aerrors.KindNetwork, "IP lookup request failed", errFields...)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return netip.Addr{}, aerrors.Wrap(aerrors.KindNetwork, "failed reading lookup response", err, errFields...)
	}

	var respData struct {
		IP string `json:"ip"`
	}
	if err = json.Unmarshal(body, &respData); err != nil {
		return netip.Addr{}, aerrors.Wrap(aerrors.KindNetwork, "failed parsing lookup response", err, errFields...)
	}

	addr, err := netip.ParseAddr(respData.IP)
	if err != nil {
		return netip.Addr{}, aerrors.Wrap(
			aerrors.KindNetwork, "lookup service returned an invalid address", err,
			append(errFields, "address", respData.IP)...)
	}

	addr = addr.Unmap()
	errFields = append(errFields, "address", addr.String())
	if !addr.Is4() {
		// The tracked allow-rule is a /32, so an IPv6 answer is unusable.
		return netip.Addr{}, aerrors.New(
			aerrors.KindNetwork, "lookup service returned a non-IPv4 address", errFields...)
	}
	if reservedIPSet.Contains(addr) {
		return netip.Addr{}, aerrors.New(
			aerrors.KindNetwork, "lookup service returned a non-public address", errFields...)
	}

	r.logger.Debug("resolved public IP", "address", addr.String())

	return addr, nil
}

// reservedIPSet holds the IPv4 ranges that can never be a valid public
// address of this host: anything an honest lookup service should never
// answer with.
var reservedIPSet = func() *netipx.IPSet {
	var b netipx.IPSetBuilder
	for _, p := range []string{
		"0.0.0.0/8",       // "this network"
		"10.0.0.0/8",      // RFC 1918
		"100.64.0.0/10",   // CGNAT
		"127.0.0.0/8",     // loopback
		"169.254.0.0/16",  // link-local
		"172.16.0.0/12",   // RFC 1918
		"192.0.2.0/24",    // TEST-NET-1
		"192.168.0.0/16",  // RFC 1918
		"198.18.0.0/15",   // benchmarking
		"198.51.100.0/24", // TEST-NET-2
		"203.0.113.0/24",  // TEST-NET-3
		"224.0.0.0/4",     // multicast
		"240.0.0.0/4",     // reserved
	} {
		b.AddPrefix(netip.MustParsePrefix(p))
	}
	s, err := b.IPSet()
	if err != nil {
		panic(err)
	}
	return s
}()
