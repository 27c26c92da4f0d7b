// Package transport implements the HTTP client for the coordination server.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"keysync/internal/domain"
)

// Client talks JSON over HTTP to the sync server.
type Client struct {
	Base  string
	Token string
	HTTP  *http.Client
}

// New returns a Client for the given base URL. An empty token leaves requests
// unauthenticated; servers that require one answer with NO_ACCESS_TOKEN.
func New(base, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{Base: base, Token: token, HTTP: httpClient}
}

// errEnvelope is the server's error body; kind maps onto the client taxonomy.
type errEnvelope struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Buffer
	if in != nil {
		body = new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return err
		}
	} else {
		body = new(bytes.Buffer)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindTransport, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var env errEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr == nil && env.Kind != "" {
			return domain.E(env.Kind, env.Error)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return domain.E(domain.KindNoAccessToken, "server rejected credentials")
		}
		return domain.E(domain.KindTransport, fmt.Sprintf("%s %s: %s", method, path, resp.Status))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) RegisterDevice(ctx context.Context, displayName, platform, deviceNonce string, signPub domain.Ed25519Public) (domain.RegisterResult, error) {
	in := struct {
		DisplayName string              `json:"display_name"`
		Platform    string              `json:"platform"`
		DeviceNonce string              `json:"device_nonce"`
		SignPub     domain.Ed25519Public `json:"sign_pub"`
	}{displayName, platform, deviceNonce, signPub}
	var out domain.RegisterResult
	err := c.do(ctx, http.MethodPost, "/v1/devices/register", in, &out)
	return out, err
}

func (c *Client) TeamStatus(ctx context.Context) (domain.TeamInfo, error) {
	var out domain.TeamInfo
	err := c.do(ctx, http.MethodGet, "/v1/team", nil, &out)
	return out, err
}

func (c *Client) GetDevice(ctx context.Context, id string) (domain.Device, error) {
	var out domain.Device
	err := c.do(ctx, http.MethodGet, "/v1/devices/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) ListDevices(ctx context.Context) ([]domain.Device, error) {
	var out []domain.Device
	err := c.do(ctx, http.MethodGet, "/v1/devices", nil, &out)
	return out, err
}

func (c *Client) RenameDevice(ctx context.Context, id, displayName string) error {
	in := struct {
		DisplayName string `json:"display_name"`
	}{displayName}
	return c.do(ctx, http.MethodPatch, "/v1/devices/"+url.PathEscape(id), in, nil)
}

func (c *Client) RevokeDevice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/devices/"+url.PathEscape(id)+"/revoke", nil, nil)
}

func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/devices/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreatePairing(ctx context.Context, deviceID, codeHash string, ephPub domain.X25519Public) (domain.PairingCreated, error) {
	in := struct {
		DeviceID string              `json:"device_id"`
		CodeHash string              `json:"code_hash"`
		EphPub   domain.X25519Public `json:"eph_pub"`
	}{deviceID, codeHash, ephPub}
	var out domain.PairingCreated
	err := c.do(ctx, http.MethodPost, "/v1/pairings", in, &out)
	return out, err
}

func (c *Client) GetPairing(ctx context.Context, pairingID string) (domain.PairingInfo, error) {
	var out domain.PairingInfo
	err := c.do(ctx, http.MethodGet, "/v1/pairings/"+url.PathEscape(pairingID), nil, &out)
	return out, err
}

func (c *Client) ClaimPairing(ctx context.Context, deviceID, code string, ephPub domain.X25519Public) (domain.ClaimResult, error) {
	in := struct {
		DeviceID string              `json:"device_id"`
		Code     string              `json:"code"`
		EphPub   domain.X25519Public `json:"eph_pub"`
	}{deviceID, code, ephPub}
	var out domain.ClaimResult
	err := c.do(ctx, http.MethodPost, "/v1/pairings/claim", in, &out)
	return out, err
}

func (c *Client) GetPairingMessages(ctx context.Context, pairingID string) (domain.Mailbox, error) {
	var out domain.Mailbox
	err := c.do(ctx, http.MethodGet, "/v1/pairings/"+url.PathEscape(pairingID)+"/messages", nil, &out)
	return out, err
}

func (c *Client) ApprovePairing(ctx context.Context, pairingID string) error {
	return c.do(ctx, http.MethodPost, "/v1/pairings/"+url.PathEscape(pairingID)+"/approve", nil, nil)
}

func (c *Client) CompletePairing(ctx context.Context, pairingID string, msg domain.PairingMessage) error {
	return c.do(ctx, http.MethodPost, "/v1/pairings/"+url.PathEscape(pairingID)+"/complete", msg, nil)
}

func (c *Client) ConfirmPairing(ctx context.Context, pairingID, proof string) (domain.ConfirmResult, error) {
	in := struct {
		Proof string `json:"proof"`
	}{proof}
	var out domain.ConfirmResult
	err := c.do(ctx, http.MethodPost, "/v1/pairings/"+url.PathEscape(pairingID)+"/confirm", in, &out)
	return out, err
}

func (c *Client) CancelPairing(ctx context.Context, pairingID string) error {
	return c.do(ctx, http.MethodPost, "/v1/pairings/"+url.PathEscape(pairingID)+"/cancel", nil, nil)
}

func (c *Client) ResetTeamSync(ctx context.Context, deviceID, reason string) (domain.ResetResult, error) {
	in := struct {
		DeviceID string `json:"device_id"`
		Reason   string `json:"reason,omitempty"`
	}{deviceID, reason}
	var out domain.ResetResult
	err := c.do(ctx, http.MethodPost, "/v1/team/reset", in, &out)
	return out, err
}

func (c *Client) ReinitializeTeam(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/team/reinitialize", nil, nil)
}

// Compile-time assertion that Client implements domain.SyncTransport.
var _ domain.SyncTransport = (*Client)(nil)
