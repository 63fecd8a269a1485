package metadata

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/util/cache"
)

func TestNormalizeURI(t *testing.T) {
	cid := "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	assert.Equal(t,
		"https://ipfs.io/ipfs/"+cid+"/metadata.json",
		NormalizeURI("ipfs://"+cid+"/metadata.json"),
	)
	assert.Equal(t, "https://example.com/x.json", NormalizeURI("https://example.com/x.json"))
	assert.Equal(t, "https://ipfs.io/ipfs/"+cid, NormalizeURI("ipfs://ipfs/"+cid))
	assert.Equal(t, "", NormalizeURI(""))

	r := NewResolver("https://gw.example/", nil, nil, nil)
	assert.Equal(t, "https://gw.example/ipfs/"+cid+"/1", r.NormalizeURI("ipfs://"+cid+"/1"))
}

func TestParseImagePrecedence(t *testing.T) {
	md, ok := Parse([]byte(`{"name":"A","thumbnail":"t","animation_url":"a","imageUrl":"iu","image_url":"i_u"}`))
	require.True(t, ok)
	assert.Equal(t, "i_u", md.Image)

	md, ok = Parse([]byte(`{"image":"","image_url":null,"imageUrl":"iu","thumbnail":"t"}`))
	require.True(t, ok)
	assert.Equal(t, "iu", md.Image)

	md, ok = Parse([]byte(`{"image":"img","thumbnail":"t"}`))
	require.True(t, ok)
	assert.Equal(t, "img", md.Image)

	_, ok = Parse([]byte(`["not","an","object"]`))
	assert.False(t, ok)
}

func TestFetchSynthesizesForNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("just some text"))
	}))
	defer srv.Close()

	r := NewResolver("", srv.Client(), nil, zaptest.NewLogger(t))
	uri := srv.URL + "/token/7"
	md, err := r.Fetch(context.Background(), uri, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, &Metadata{Name: "Token #7", Description: "", Image: uri}, md)
}

func TestFetchParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"Sunset","description":"warm","image_url":"ipfs://bafyimg"}`))
	}))
	defer srv.Close()

	r := NewResolver("", srv.Client(), nil, zaptest.NewLogger(t))
	md, err := r.Fetch(context.Background(), srv.URL, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "Sunset", md.Name)
	assert.Equal(t, "warm", md.Description)
	assert.Equal(t, "ipfs://bafyimg", md.Image)
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	r := NewResolver("", srv.Client(), nil, zaptest.NewLogger(t))

	md, err := r.Fetch(context.Background(), srv.URL, big.NewInt(1))
	assert.Nil(t, md)
	assert.ErrorIs(t, err, aucommon.ErrMetadataUnreachable)

	srv.Close()
	md, err = r.Fetch(context.Background(), srv.URL, big.NewInt(1))
	assert.Nil(t, md)
	assert.ErrorIs(t, err, aucommon.ErrMetadataUnreachable)
}

func TestFetchCachesContentAddressedDocuments(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/ipfs/bafymeta/1.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Cached","image":"ipfs://bafyimg"}`))
	}))
	defer srv.Close()

	c := cache.New(filepath.Join(t.TempDir(), "metadata.json"))
	r := NewResolver(srv.URL, srv.Client(), c, zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		md, err := r.Fetch(context.Background(), "ipfs://bafymeta/1.json", big.NewInt(1))
		require.NoError(t, err)
		assert.Equal(t, "Cached", md.Name)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchDataURI(t *testing.T) {
	r := NewResolver("", nil, nil, zaptest.NewLogger(t))
	md, err := r.Fetch(context.Background(),
		"data:application/json;base64,eyJuYW1lIjoiT25jaGFpbiIsImltYWdlIjoiaHR0cHM6Ly94LnkvaS5wbmcifQ==",
		big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, "Onchain", md.Name)
	assert.Equal(t, "https://x.y/i.png", md.Image)
}

func TestFetchHonoursCancellation(t *testing.T) {
	r := NewResolver("", nil, nil, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Fetch(ctx, "https://example.com/1", big.NewInt(1))
	assert.ErrorIs(t, err, context.Canceled)
}
