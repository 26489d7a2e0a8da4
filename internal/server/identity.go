// ABOUTME: Identity resolves a bearer token to a {role, id} principal via an external oracle.
// ABOUTME: Roles are namespaced "<role>_<id>" for users/admins, "swarm_<id>" for agents.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Role is the principal kind an authenticated caller maps to.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Principal is the resolved identity behind a bearer token.
type Principal struct {
	Role Role
	ID   string
}

// Namespace renders the principal's runtime-tenant key, per spec.md §6:
// "<role>_<id>" for users/admins, "swarm_<id>" for agents.
func (p Principal) Namespace() string {
	if p.Role == RoleAgent {
		return "swarm_" + p.ID
	}
	return string(p.Role) + "_" + p.ID
}

// IdentityOracle exchanges a bearer token for a Principal by calling an
// external auth endpoint (token -> JWT) and a token-info endpoint
// (JWT -> {role, id}), per spec.md §6.
type IdentityOracle struct {
	authEndpoint     string
	tokenInfoEndpoint string
	client           *http.Client
}

// NewIdentityOracle builds an oracle against authEndpoint and
// tokenInfoEndpoint. Either may be empty, in which case Resolve always
// fails — callers should fall back to a static bearer token comparison.
func NewIdentityOracle(authEndpoint, tokenInfoEndpoint string) *IdentityOracle {
	return &IdentityOracle{
		authEndpoint:      authEndpoint,
		tokenInfoEndpoint: tokenInfoEndpoint,
		client:            &http.Client{Timeout: 10 * time.Second},
	}
}

type authResponse struct {
	JWT string `json:"jwt"`
}

type tokenInfoResponse struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

// Resolve exchanges apiKey for a JWT, then the JWT for a {role, id} pair.
func (o *IdentityOracle) Resolve(apiKey string) (Principal, error) {
	if o.authEndpoint == "" || o.tokenInfoEndpoint == "" {
		return Principal{}, fmt.Errorf("server: no identity oracle configured")
	}

	jwt, err := o.exchangeForJWT(apiKey)
	if err != nil {
		return Principal{}, err
	}

	info, err := o.tokenInfo(jwt)
	if err != nil {
		return Principal{}, err
	}

	switch info.Role {
	case RoleAdmin, RoleUser, RoleAgent:
	default:
		return Principal{}, fmt.Errorf("server: identity oracle returned unknown role %q", info.Role)
	}
	if info.ID == "" {
		return Principal{}, fmt.Errorf("server: identity oracle returned empty id")
	}

	return Principal{Role: info.Role, ID: info.ID}, nil
}

func (o *IdentityOracle) exchangeForJWT(apiKey string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, o.authEndpoint, strings.NewReader(fmt.Sprintf(`{"api_key":%q}`, apiKey)))
	if err != nil {
		return "", fmt.Errorf("server: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("server: auth endpoint unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server: auth endpoint returned status %d", resp.StatusCode)
	}

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("server: decode auth response: %w", err)
	}
	return out.JWT, nil
}

func (o *IdentityOracle) tokenInfo(jwt string) (tokenInfoResponse, error) {
	req, err := http.NewRequest(http.MethodGet, o.tokenInfoEndpoint, nil)
	if err != nil {
		return tokenInfoResponse{}, fmt.Errorf("server: build token-info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwt)

	resp, err := o.client.Do(req)
	if err != nil {
		return tokenInfoResponse{}, fmt.Errorf("server: token-info endpoint unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return tokenInfoResponse{}, fmt.Errorf("server: token-info endpoint returned status %d", resp.StatusCode)
	}

	var out tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return tokenInfoResponse{}, fmt.Errorf("server: decode token-info response: %w", err)
	}
	return out, nil
}
