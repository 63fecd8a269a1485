// Package pinning uploads token images and metadata to Pinata so they can be
// minted with an ipfs:// token uri.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const DefaultEndpoint = "https://api.pinata.cloud"

var ErrNoCredentials = errors.New("pinata credentials are not configured, set a jwt or an api key and secret")

type Credentials struct {
	JWT       string `mapstructure:"jwt"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

func (c Credentials) valid() bool {
	return c.JWT != "" || (c.APIKey != "" && c.APISecret != "")
}

// authorize prefers the jwt when both kinds are set.
func (c Credentials) authorize(req *http.Request) {
	if c.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.JWT)
		return
	}
	req.Header.Set("pinata_api_key", c.APIKey)
	req.Header.Set("pinata_secret_api_key", c.APISecret)
}

type Client struct {
	endpoint string
	creds    Credentials
	http     *http.Client
	logger   *zap.Logger
}

func NewClient(endpoint string, creds Credentials, httpClient *http.Client, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		creds:    creds,
		http:     httpClient,
		logger:   logger,
	}
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

// details digs the human message out of pinata's error body, which is
// either a string or {reason, details}.
func details(body []byte) string {
	resp := errorResponse{}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Error) == 0 {
		return strings.TrimSpace(string(body))
	}
	var msg string
	if err := json.Unmarshal(resp.Error, &msg); err == nil {
		return msg
	}
	structured := struct {
		Reason  string `json:"reason"`
		Details string `json:"details"`
	}{}
	if err := json.Unmarshal(resp.Error, &structured); err == nil && structured.Details != "" {
		return structured.Details
	}
	return string(resp.Error)
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	if !c.creds.valid() {
		return "", ErrNoCredentials
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	c.creds.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata %s: %w", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("pinata %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("pinata %s returned %d: %s", path, resp.StatusCode, details(data))
	}
	pinned := pinResponse{}
	if err := json.Unmarshal(data, &pinned); err != nil {
		return "", fmt.Errorf("couldn't unmarshal %s to pin response, err: %w", string(data), err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("pinata %s returned no hash", path)
	}
	c.logger.Debug("pinned", zap.String("path", path), zap.String("cid", pinned.IpfsHash), zap.Int64("size", pinned.PinSize))
	return pinned.IpfsHash, nil
}

// PinFile uploads content under name and returns its CID.
func (c *Client) PinFile(ctx context.Context, name string, content io.Reader) (string, error) {
	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	part, err := form.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("couldn't read %s: %w", name, err)
	}
	meta, _ := json.Marshal(map[string]string{"name": filepath.Base(name)})
	if err := form.WriteField("pinataMetadata", string(meta)); err != nil {
		return "", err
	}
	if err := form.WriteField("pinataOptions", `{"cidVersion":1}`); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}
	return c.do(ctx, "/pinning/pinFileToIPFS", form.FormDataContentType(), buf)
}

// PinJSON uploads doc as a json document and returns its CID.
func (c *Client) PinJSON(ctx context.Context, doc interface{}) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("couldn't marshal document: %w", err)
	}
	return c.do(ctx, "/pinning/pinJSONToIPFS", "application/json", bytes.NewReader(data))
}

type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

type TokenMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

type PinnedNFT struct {
	ImageCID    string
	ImageURI    string
	MetadataCID string
	// MetadataURI is what goes into mint.
	MetadataURI string
	Metadata    TokenMetadata
}

// PinNFT uploads the image, then a metadata document pointing at it.
func (c *Client) PinNFT(ctx context.Context, name, description string, image io.Reader, imageName string, attrs []Attribute) (*PinnedNFT, error) {
	if name == "" {
		return nil, errors.New("nft name is empty")
	}
	if imageName == "" {
		imageName = name
	}
	imageCID, err := c.PinFile(ctx, imageName, image)
	if err != nil {
		return nil, fmt.Errorf("couldn't pin image: %w", err)
	}
	if attrs == nil {
		attrs = []Attribute{}
	}
	md := TokenMetadata{
		Name:        name,
		Description: description,
		Image:       "ipfs://" + imageCID,
		Attributes:  attrs,
	}
	mdCID, err := c.PinJSON(ctx, md)
	if err != nil {
		return nil, fmt.Errorf("couldn't pin metadata: %w", err)
	}
	return &PinnedNFT{
		ImageCID:    imageCID,
		ImageURI:    md.Image,
		MetadataCID: mdCID,
		MetadataURI: "ipfs://" + mdCID,
		Metadata:    md,
	}, nil
}
