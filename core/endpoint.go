package core

import "strings"

// EndpointRewriter maps a data plane address advertised inside the connector
// network to the address reachable from this host. Only the first occurrence
// of Internal is replaced; endpoints without it pass through unchanged.
type EndpointRewriter struct {
	Internal string
	External string
}

func (r EndpointRewriter) Rewrite(endpoint string) string {
	if strings.TrimSpace(r.Internal) == "" {
		return endpoint
	}
	return strings.Replace(endpoint, r.Internal, r.External, 1)
}
