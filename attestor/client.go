// Package attestor talks to the off-chain attestation service that
// certifies source-chain burns. The service indexes attestations by the
// keccak hash of the raw message bytes.
package attestor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/meantime-io/receivables-go/common"
)

type Status string

const (
	StatusComplete Status = "complete"
	StatusPending  Status = "pending_confirmations"
)

// Attestation is the service's answer for one message hash.
type Attestation struct {
	Status      Status
	Attestation []byte
}

func (a *Attestation) Complete() bool {
	return a != nil && a.Status == StatusComplete && len(a.Attestation) > 0
}

const defaultRequestTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
}

type attestationResponse struct {
	Status      string `json:"status"`
	Attestation string `json:"attestation"`
}

// Get fetches the attestation for a message hash. A non-2xx answer,
// including 404 for a hash the service has not indexed yet, is reported
// as pending rather than an error; only transport failures surface as
// errors, and callers treat those as pending too.
func (c *Client) Get(ctx context.Context, messageHash ethcommon.Hash) (*Attestation, error) {
	url := fmt.Sprintf("%s/attestations/%s", c.baseURL, common.NormalizeHash(messageHash))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &Attestation{Status: StatusPending}, nil
	}

	var body attestationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed attestation response: %w", err)
	}

	if body.Status != string(StatusComplete) || body.Attestation == "" {
		return &Attestation{Status: StatusPending}, nil
	}

	return &Attestation{
		Status:      StatusComplete,
		Attestation: ethcommon.FromHex(body.Attestation),
	}, nil
}
