package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/schema"

	"github.com/zsprackett/devradar/internal/developer"
)

const searchPath = "/search"

// Query is the search filter sent as URL parameters.
type Query struct {
	Latitude  float64 `schema:"latitude"`
	Longitude float64 `schema:"longitude"`
	Techs     string  `schema:"techs"`
}

var encoder = newEncoder()

func newEncoder() *schema.Encoder {
	enc := schema.NewEncoder()
	// Shortest representation; the default pads to six decimals.
	enc.RegisterEncoder(float64(0), func(v reflect.Value) string {
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	})
	return enc
}

// Values encodes q as URL parameters.
func (q Query) Values() (url.Values, error) {
	vals := url.Values{}
	if err := encoder.Encode(q, vals); err != nil {
		return nil, err
	}
	return vals, nil
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API rooted at baseURL. A zero timeout leaves
// requests bounded only by their context.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Search fetches the developers matching q. The result is returned in the
// order the server sent it.
func (c *Client) Search(ctx context.Context, q Query) ([]developer.Developer, error) {
	vals, err := q.Values()
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+vals.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	devs, err := decodeDevelopers(body)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return devs, nil
}

// decodeDevelopers accepts either a bare array or an object wrapping the
// array under "devs" or "developers".
func decodeDevelopers(body []byte) ([]developer.Developer, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var devs []developer.Developer
		if err := json.Unmarshal(trimmed, &devs); err != nil {
			return nil, err
		}
		return devs, nil
	}
	var wrapped struct {
		Devs       []developer.Developer `json:"devs"`
		Developers []developer.Developer `json:"developers"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Devs != nil {
		return wrapped.Devs, nil
	}
	return wrapped.Developers, nil
}
