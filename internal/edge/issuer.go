// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/infinitune/internal/platform/httpx"
	platformnet "github.com/ManuGH/infinitune/internal/platform/net"
)

// IssuerBearerValidator validates bearer tokens against an external
// OAuth2/OIDC introspection endpoint (RFC 7662), restricting outbound
// calls to the configured issuer host only.
type IssuerBearerValidator struct {
	introspectURL string
	client        *http.Client
	policy        platformnet.OutboundPolicy
}

// NewIssuerBearerValidator constructs a validator for the given issuer
// base URL. It rejects malformed or credential-bearing URLs up front so
// a misconfigured ROOM_AUTH_ISSUER_URL fails at startup, not per-request.
func NewIssuerBearerValidator(issuerURL string) (*IssuerBearerValidator, error) {
	u, ok := platformnet.ParseDirectHTTPURL(issuerURL)
	if !ok {
		return nil, fmt.Errorf("edge: invalid issuer url %q", issuerURL)
	}

	ports := []int{80, 443}
	if p := u.Port(); p != "" {
		var port int
		if _, err := fmt.Sscanf(p, "%d", &port); err == nil {
			ports = append(ports, port)
		}
	}

	return &IssuerBearerValidator{
		introspectURL: strings.TrimSuffix(issuerURL, "/") + "/introspect",
		client:        httpx.NewClient(3 * time.Second),
		policy: platformnet.OutboundPolicy{
			Enabled: true,
			Allow: platformnet.OutboundAllowlist{
				Hosts:   []string{u.Hostname()},
				Schemes: []string{strings.ToLower(u.Scheme)},
				Ports:   ports,
			},
		},
	}, nil
}

type introspectionResponse struct {
	Active bool   `json:"active"`
	Sub    string `json:"sub"`
}

// ValidateBearer implements BearerValidator by POSTing the token to the
// issuer's introspection endpoint and trusting its active/sub verdict.
func (v *IssuerBearerValidator) ValidateBearer(ctx context.Context, token string) (string, error) {
	target, err := platformnet.ValidateOutboundURL(ctx, v.introspectURL, v.policy)
	if err != nil {
		return "", fmt.Errorf("edge: issuer url rejected: %w", err)
	}

	body := url.Values{"token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("edge: build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("edge: introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("edge: issuer returned status %d", resp.StatusCode)
	}

	var parsed introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("edge: decode introspection response: %w", err)
	}
	if !parsed.Active || parsed.Sub == "" {
		return "", fmt.Errorf("edge: token not active")
	}
	return parsed.Sub, nil
}
