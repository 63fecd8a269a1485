// Package metadata resolves token uris into token metadata.
package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/util/cache"
)

const (
	DefaultGateway = "https://ipfs.io"
	ipfsScheme     = "ipfs://"
	maxBodySize    = 8 << 20
)

// ImageKeys are the metadata keys an image is taken from, first non-empty
// wins.
var ImageKeys = []string{"image", "image_url", "imageUrl", "animation_url", "thumbnail"}

type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// NormalizeURI rewrites ipfs://<cid>/<path> to the public gateway. Any other
// uri is returned unchanged.
func NormalizeURI(uri string) string {
	return normalize(DefaultGateway, uri)
}

func normalize(gateway, uri string) string {
	if !strings.HasPrefix(uri, ipfsScheme) {
		return uri
	}
	rest := strings.TrimPrefix(uri, ipfsScheme)
	// ipfs://ipfs/<cid> is a common mistake for ipfs://<cid>
	rest = strings.TrimPrefix(rest, "ipfs/")
	return strings.TrimRight(gateway, "/") + "/ipfs/" + rest
}

// Synthesize is the metadata of a token whose uri points at something that
// is not a json document, e.g. the image itself.
func Synthesize(tokenID *big.Int, resolvedURI string) *Metadata {
	return &Metadata{
		Name:        fmt.Sprintf("Token #%s", tokenID.String()),
		Description: "",
		Image:       resolvedURI,
	}
}

type Resolver struct {
	gateway string
	client  *http.Client
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewResolver builds a resolver. An empty gateway means DefaultGateway, a
// nil client a client with a 30s timeout and a nil cache no caching.
func NewResolver(gateway string, client *http.Client, c *cache.Cache, logger *zap.Logger) *Resolver {
	if gateway == "" {
		gateway = DefaultGateway
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{gateway: gateway, client: client, cache: c, logger: logger}
}

func (r *Resolver) NormalizeURI(uri string) string {
	return normalize(r.gateway, uri)
}

// Fetch returns the metadata uri points at. A body that is not a json object
// gives synthesized metadata. Only a failed fetch is an error, wrapping
// ErrMetadataUnreachable.
func (r *Resolver) Fetch(ctx context.Context, uri string, tokenID *big.Int) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("token #%s has an empty uri: %w", tokenID, aucommon.ErrMetadataUnreachable)
	}
	resolved := r.NormalizeURI(uri)
	immutable := strings.HasPrefix(uri, ipfsScheme)
	if immutable && r.cache != nil {
		if cached, found := r.cache.Get(uri); found {
			md := &Metadata{}
			if json.Unmarshal([]byte(cached), md) == nil {
				return md, nil
			}
		}
	}

	body, err := r.load(ctx, resolved)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %w", resolved, aucommon.ErrMetadataUnreachable, err)
	}
	md, ok := Parse(body)
	if !ok {
		r.logger.Debug("metadata is not json, synthesizing",
			zap.String("uri", resolved),
			zap.String("token", tokenID.String()),
		)
		md = Synthesize(tokenID, resolved)
	} else if md.Image == "" {
		md.Image = resolved
	}

	if immutable && r.cache != nil {
		if encoded, err := json.Marshal(md); err == nil {
			if err := r.cache.Set(uri, string(encoded)); err != nil {
				r.logger.Debug("couldn't cache metadata", zap.String("uri", uri), zap.Error(err))
			}
		}
	}
	return md, nil
}

func (r *Resolver) load(ctx context.Context, resolved string) ([]byte, error) {
	if strings.HasPrefix(resolved, "data:") {
		return decodeDataURI(resolved)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway answered %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

// decodeDataURI handles on-chain metadata of the form
// data:application/json;base64,<payload>.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, found := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !found {
		return nil, fmt.Errorf("malformed data uri")
	}
	if strings.HasSuffix(header, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(decoded), nil
}

// Parse reads a metadata document. ok is false when body is not a json
// object.
func Parse(body []byte) (*Metadata, bool) {
	doc := map[string]interface{}{}
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return nil, false
	}
	md := &Metadata{
		Name:        stringField(doc, "name"),
		Description: stringField(doc, "description"),
	}
	for _, key := range ImageKeys {
		if image := stringField(doc, key); image != "" {
			md.Image = image
			break
		}
	}
	return md, true
}

func stringField(doc map[string]interface{}, key string) string {
	s, _ := doc[key].(string)
	return s
}
