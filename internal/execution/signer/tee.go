package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyphalabs/evm-agent/internal/httpx"
)

// TEEConfig points at a key-derivation service running inside a trusted
// execution environment. Instead of holding a raw private key, the agent asks
// the service to derive one from a salt and its own identifier. The derived
// key never leaves this process once loaded.
type TEEConfig struct {
	Endpoint string
	Salt     string
	AgentID  string
	Timeout  time.Duration
}

type deriveKeyRequest struct {
	Salt    string `json:"salt"`
	Subject string `json:"subject"`
}

type deriveKeyResponse struct {
	Key string `json:"key"`
}

// NewTEESigner derives an ECDSA key via the configured TEE service and wraps
// it in a LocalSigner.
func NewTEESigner(ctx context.Context, cfg TEEConfig) (*LocalSigner, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("tee key source requires an endpoint")
	}
	if strings.TrimSpace(cfg.AgentID) == "" {
		return nil, fmt.Errorf("tee key source requires an agent id")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	payload, err := json.Marshal(deriveKeyRequest{Salt: cfg.Salt, Subject: cfg.AgentID})
	if err != nil {
		return nil, fmt.Errorf("encode derive request: %w", err)
	}

	client := httpx.New(timeout, 1)
	var resp deriveKeyResponse
	if _, err := httpx.DoBodyJSON(ctx, client, http.MethodPost, endpoint+"/derive-key", payload, nil, &resp); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	if strings.TrimSpace(resp.Key) == "" {
		return nil, fmt.Errorf("tee service returned empty key material")
	}

	pk, err := parseHexKey(resp.Key)
	if err != nil {
		return nil, fmt.Errorf("parse derived key: %w", err)
	}
	return newFromKey(pk)
}
