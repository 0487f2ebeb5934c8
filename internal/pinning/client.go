package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client talks to the Pinata pinning API. Credentials live server-side and
// are attached to every upstream request; they are never echoed to callers.
type Client struct {
	baseURL   string
	apiKey    string
	secretKey string
	http      *http.Client
}

// PinResponse is Pinata's answer for both file and JSON pins.
type PinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func NewClient(baseURL, apiKey, secretKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) authenticate(req *http.Request) {
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.secretKey)
}

// PinFile uploads a single file to IPFS via pinFileToIPFS.
func (c *Client) PinFile(ctx context.Context, filename string, content io.Reader) (*PinResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("copy file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinFileToIPFS", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authenticate(req)

	return c.do(req)
}

// PinJSON pins an arbitrary JSON document via pinJSONToIPFS.
func (c *Client) PinJSON(ctx context.Context, content any) (*PinResponse, error) {
	raw, err := json.Marshal(map[string]any{"pinataContent": content})
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authenticate(req)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*PinResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("pinata status %d: %s", resp.StatusCode, string(raw))
	}

	var pr PinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode pinata response: %w", err)
	}
	return &pr, nil
}
