package pinning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePinata struct {
	t      *testing.T
	files  map[string]string
	docs   []map[string]interface{}
	header http.Header
}

func (f *fakePinata) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.header = r.Header.Clone()
	if r.Header.Get("Authorization") == "" && r.Header.Get("pinata_api_key") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"reason":"INVALID_CREDENTIALS","details":"No authentication method provided"}}`)
		return
	}
	switch r.URL.Path {
	case "/pinning/pinFileToIPFS":
		assert.NoError(f.t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		assert.NoError(f.t, err)
		body, _ := io.ReadAll(file)
		f.files[header.Filename] = string(body)
		assert.JSONEq(f.t, `{"cidVersion":1}`, r.FormValue("pinataOptions"))
		io.WriteString(w, `{"IpfsHash":"bafyimage","PinSize":5,"Timestamp":"2024-01-01T00:00:00Z"}`)
	case "/pinning/pinJSONToIPFS":
		doc := map[string]interface{}{}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&doc))
		f.docs = append(f.docs, doc)
		io.WriteString(w, `{"IpfsHash":"bafymeta","PinSize":80}`)
	default:
		http.NotFound(w, r)
	}
}

func newServer(t *testing.T) (*fakePinata, *httptest.Server) {
	fake := &fakePinata{t: t, files: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, srv
}

func TestPinNFT(t *testing.T) {
	fake, srv := newServer(t)
	c := NewClient(srv.URL, Credentials{JWT: "token"}, srv.Client(), zaptest.NewLogger(t))

	pinned, err := c.PinNFT(context.Background(), "Sunset", "a sunset", strings.NewReader("image"), "sunset.png",
		[]Attribute{{TraitType: "mood", Value: "calm"}})
	require.NoError(t, err)

	assert.Equal(t, "ipfs://bafyimage", pinned.ImageURI)
	assert.Equal(t, "ipfs://bafymeta", pinned.MetadataURI)
	assert.Equal(t, "image", fake.files["sunset.png"])
	assert.Equal(t, "Bearer token", fake.header.Get("Authorization"))
	require.Len(t, fake.docs, 1)
	assert.Equal(t, "Sunset", fake.docs[0]["name"])
	assert.Equal(t, "ipfs://bafyimage", fake.docs[0]["image"])
}

func TestKeyAndSecretAuth(t *testing.T) {
	fake, srv := newServer(t)
	c := NewClient(srv.URL, Credentials{APIKey: "key", APISecret: "secret"}, srv.Client(), zaptest.NewLogger(t))

	cid, err := c.PinJSON(context.Background(), map[string]string{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "bafymeta", cid)
	assert.Equal(t, "key", fake.header.Get("pinata_api_key"))
	assert.Equal(t, "secret", fake.header.Get("pinata_secret_api_key"))
	assert.Empty(t, fake.header.Get("Authorization"))
}

func TestMissingCredentials(t *testing.T) {
	_, srv := newServer(t)
	c := NewClient(srv.URL, Credentials{APIKey: "key"}, srv.Client(), zaptest.NewLogger(t))
	_, err := c.PinJSON(context.Background(), map[string]string{})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestErrorDetailsAreSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"reason":"NO_SCOPES_FOUND","details":"This key does not have the required scopes"}}`)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, Credentials{JWT: "token"}, srv.Client(), zaptest.NewLogger(t))

	_, err := c.PinFile(context.Background(), "a.png", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required scopes")
	assert.Contains(t, err.Error(), "403")
}
