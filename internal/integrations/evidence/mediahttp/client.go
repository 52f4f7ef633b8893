package mediahttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/CargoTrack/internal/integrations/evidence"
	"github.com/pkg/errors"
)

// Client загружает фото/подписи во внешний медиа-сервис и возвращает постоянную ссылку.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type respBody struct {
	URL string `json:"url"`
}

func (c *Client) Put(ctx context.Context, trackingID string, kind evidence.Kind, a evidence.Artifact) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/v1/media/%s/%s", url.PathEscape(trackingID), url.PathEscape(string(kind)))
	q := u.Query()
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(a.Data))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	req.Header.Set("Content-Type", ct)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return "", fmt.Errorf("media service rejected %s: too large (413)", kind)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("media service http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return "", errors.Wrap(err, "decode")
	}
	if rb.URL == "" {
		return "", errors.New("media service returned empty url")
	}
	return rb.URL, nil
}
