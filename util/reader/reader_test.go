package reader

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aucommon "github.com/tranvictor/auctioneer/common"
)

type fakeEth struct {
	chainID int64
	code    map[common.Address][]byte
	owner   common.Address
	fail    bool
}

func (f *fakeEth) ChainId() (*hexutil.Big, error) {
	if f.fail {
		return nil, errors.New("node is down")
	}
	return (*hexutil.Big)(big.NewInt(f.chainID)), nil
}

func (f *fakeEth) GetCode(addr common.Address, block string) (hexutil.Bytes, error) {
	if f.fail {
		return nil, errors.New("node is down")
	}
	return f.code[addr], nil
}

func (f *fakeEth) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	if f.fail {
		return nil, errors.New("node is down")
	}
	out, err := aucommon.GetNFTABI().Methods["ownerOf"].Outputs.Pack(f.owner)
	return out, err
}

func inprocNode(t *testing.T, name string, svc *fakeEth) *OneNodeReader {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", svc))
	client := rpc.DialInProc(srv)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return NewOneNodeReaderWithClient(name, client)
}

func TestReaderReturnsFirstSuccess(t *testing.T) {
	contract := common.HexToAddress("0xc0de")
	healthy := &fakeEth{chainID: 1337, code: map[common.Address][]byte{contract: {0x60, 0x80}}}
	broken := &fakeEth{fail: true}
	r := NewEthReaderWithNodes(inprocNode(t, "broken", broken), inprocNode(t, "healthy", healthy))

	id, err := r.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1337), id.Int64())

	code, err := r.GetCode(context.Background(), contract)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	code, err = r.GetCode(context.Background(), common.HexToAddress("0xdead"))
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestReaderJoinsFailures(t *testing.T) {
	r := NewEthReaderWithNodes(
		inprocNode(t, "a", &fakeEth{fail: true}),
		inprocNode(t, "b", &fakeEth{fail: true}),
	)
	_, err := r.ChainID(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "couldn't read from any nodes")
	assert.Contains(t, err.Error(), "a: ")
	assert.Contains(t, err.Error(), "b: ")
}

func TestReaderWithoutNodes(t *testing.T) {
	r := NewEthReaderWithNodes()
	_, err := r.ChainID(context.Background())
	assert.ErrorIs(t, err, aucommon.ErrNoSession)
	_, err = r.GetPendingNonce(context.Background(), common.Address{})
	assert.ErrorIs(t, err, aucommon.ErrNoSession)
}

func TestReaderHonoursCancelledContext(t *testing.T) {
	r := NewEthReaderWithNodes(inprocNode(t, "a", &fakeEth{chainID: 1}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ChainID(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadContractDecodesPositionally(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	r := NewEthReaderWithNodes(inprocNode(t, "a", &fakeEth{owner: owner}))
	ref := aucommon.NFTRef(common.HexToAddress("0xc0de"))

	out, err := r.ReadContract(context.Background(), common.Address{}, ref, "ownerOf", common.Big1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, owner, out[0])
}

func TestUnpackEmptyReturnData(t *testing.T) {
	ref := aucommon.NFTRef(common.HexToAddress("0xc0de"))
	_, err := UnpackOutputs(ref, "totalSupply", nil)
	assert.ErrorIs(t, err, aucommon.ErrNonContractAddress)
}
