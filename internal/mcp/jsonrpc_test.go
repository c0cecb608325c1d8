package mcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalRequest_RoundTrips(t *testing.T) {
	req := NewRequest("1", "tools/list", map[string]any{"foo": "bar"})
	data, err := Marshal(req)
	require.NoError(t, err)
	require.Contains(t, string(data), `"jsonrpc":"2.0"`)
	require.Contains(t, string(data), `"method":"tools/list"`)
}

func TestUnmarshalResponse_Success(t *testing.T) {
	resp, err := UnmarshalResponse([]byte(`{"jsonrpc":"2.0","id":"1","result":{"ok":true}}`))
	require.NoError(t, err)
	require.False(t, resp.IsError())
	require.Equal(t, "1", resp.ID)
}

func TestUnmarshalResponse_ErrorObject(t *testing.T) {
	resp, err := UnmarshalResponse([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32601,"message":"method not found"}}`))
	require.NoError(t, err)
	require.True(t, resp.IsError())
	require.Equal(t, MethodNotFound, resp.Error.Code)
	require.Contains(t, resp.Error.Error(), "method not found")
}

func TestUnmarshalResponse_WrongVersionRejected(t *testing.T) {
	_, err := UnmarshalResponse([]byte(`{"jsonrpc":"1.0","id":"1","result":{}}`))
	require.Error(t, err)
}

func TestUnmarshalResponse_MalformedJSON(t *testing.T) {
	_, err := UnmarshalResponse([]byte(`not json`))
	require.Error(t, err)
}

func TestRequestIDGenerator_MonotonicAndUnique(t *testing.T) {
	g := NewRequestIDGenerator()
	a := g.Next()
	b := g.Next()
	require.NotEqual(t, a, b)
	require.Equal(t, "1", a)
	require.Equal(t, "2", b)
}

func TestRequest_IsNotification(t *testing.T) {
	withID := NewRequest("1", "ping", nil)
	require.False(t, withID.IsNotification())

	notif := &Request{JSONRPC: JSONRPCVersion, Method: "ping"}
	require.True(t, notif.IsNotification())
}
