package psiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/softspot/proximity/pkg/psigroup"
)

// Client is a thin HTTP client for the proximity API. It holds a bearer
// token after Login and drives the three PSI protocol steps for either
// role.
type Client struct {
	baseURL string
	httpc   *http.Client
	token   string
}

// NewClient creates a client for the API at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

// Neighbor is one entry of a nearby-users response.
type Neighbor struct {
	UserID   string  `json:"user_id"`
	Distance float64 `json:"distance"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

// Login exchanges credentials for a bearer token, which is attached to
// every later request.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/login_for_access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := c.do(req, http.StatusOK, &body); err != nil {
		return err
	}
	c.token = body.AccessToken
	return nil
}

// UpdateLocation publishes a (perturbed) point for userID.
func (c *Client) UpdateLocation(ctx context.Context, userID string, lat, lon float64) error {
	payload := map[string]any{"user_id": userID, "latitude": lat, "longitude": lon}
	return c.postJSON(ctx, "/locations", payload, http.StatusOK, nil)
}

// NearbyUsers returns users within maxDistanceKM of userID's stored
// point, nearest first.
func (c *Client) NearbyUsers(ctx context.Context, userID string, maxDistanceKM float64) ([]Neighbor, error) {
	u := c.baseURL + "/locations/nearby_users?user_id=" + url.QueryEscape(userID) +
		"&max_distance=" + strconv.FormatFloat(maxDistanceKM, 'f', -1, 64)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out []Neighbor
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InitiatePSI runs protocol step 1 for the initiator and returns the new
// session ID.
func (c *Client) InitiatePSI(ctx context.Context, a *Initiator) (string, error) {
	payload := map[string]any{
		"blinded_values": a.BlindedItems(),
		"user_id":        a.UserID(),
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.postJSON(ctx, "/psi/init", payload, http.StatusCreated, &body); err != nil {
		return "", err
	}
	return body.SessionID, nil
}

// JoinPSI runs protocol step 2 for the joiner: it fetches the initiator's
// blinded values and submits the joiner response.
func (c *Client) JoinPSI(ctx context.Context, sessionID string, b *Joiner) error {
	status, values, _, err := c.sessionValues(ctx, sessionID)
	if err != nil {
		return err
	}
	if status != 1 {
		return fmt.Errorf("session %s not joinable (status %d)", sessionID, status)
	}
	response, err := b.Respond(values)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"session_id":      sessionID,
		"response_values": response,
		"user_id":         b.UserID(),
	}
	return c.postJSON(ctx, "/psi/"+url.PathEscape(sessionID)+"/join", payload, http.StatusOK, nil)
}

// ComputeIntersections runs protocol step 3 for the initiator: it fetches
// all joiner responses, computes each intersection locally, and reports
// the sizes back to the server. The result maps joiner user ID to the
// intersecting items.
func (c *Client) ComputeIntersections(ctx context.Context, sessionID string, a *Initiator) (map[string][]string, error) {
	status, _, responses, err := c.sessionValues(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if status < 2 {
		return nil, fmt.Errorf("session %s has no responses yet (status %d)", sessionID, status)
	}

	intersections := make(map[string][]string, len(responses))
	for joiner, values := range responses {
		items, err := a.Intersect(values)
		if err != nil {
			return nil, fmt.Errorf("joiner %s: %w", joiner, err)
		}
		intersections[joiner] = items

		payload := map[string]any{
			"user_id":          a.UserID(),
			"other_user_id":    joiner,
			"len_intersection": len(items),
		}
		req, err := c.newJSONRequest(ctx, http.MethodPatch,
			"/psi/"+url.PathEscape(sessionID)+"/intersection", payload)
		if err != nil {
			return nil, err
		}
		if err := c.do(req, http.StatusOK, nil); err != nil {
			return nil, err
		}
	}
	return intersections, nil
}

// IntersectionSize returns the intersection size the initiator reported
// for the calling user, or -1 if none was recorded.
func (c *Client) IntersectionSize(ctx context.Context, sessionID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/psi/"+url.PathEscape(sessionID)+"/intersection", nil)
	if err != nil {
		return 0, err
	}
	var body struct {
		IntersectionLen int `json:"intersection_len"`
	}
	if err := c.do(req, http.StatusOK, &body); err != nil {
		return 0, err
	}
	return body.IntersectionLen, nil
}

// sessionValues fetches GET /psi/{id}. In status 1 the values field is the
// initiator's sequence; in status 2 or 3 it is a map of joiner responses.
func (c *Client) sessionValues(ctx context.Context, sessionID string) (int, psigroup.Elements, map[string]psigroup.Elements, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/psi/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return 0, nil, nil, err
	}
	var body struct {
		Status int             `json:"status"`
		Values json.RawMessage `json:"values"`
	}
	if err := c.do(req, http.StatusOK, &body); err != nil {
		return 0, nil, nil, err
	}

	if body.Status == 1 {
		var values psigroup.Elements
		if err := json.Unmarshal(body.Values, &values); err != nil {
			return 0, nil, nil, fmt.Errorf("decode initiator values: %w", err)
		}
		return body.Status, values, nil, nil
	}
	var responses map[string]psigroup.Elements
	if err := json.Unmarshal(body.Values, &responses); err != nil {
		return 0, nil, nil, fmt.Errorf("decode joiner responses: %w", err)
	}
	return body.Status, nil, responses, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, wantStatus int, out any) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return c.do(req, wantStatus, out)
}

// do sends the request with the bearer token attached and decodes the
// response into out when the expected status is returned.
func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: unexpected status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
