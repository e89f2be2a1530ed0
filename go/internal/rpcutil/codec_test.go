package rpcutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec(t *testing.T) {
	type msg struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	codec := JSONCodec{}
	assert.Equal(t, "json", codec.Name())

	b, err := codec.Marshal(&msg{Name: "a", Count: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","count":2}`, string(b))

	var out msg
	require.NoError(t, codec.Unmarshal(b, &out))
	assert.Equal(t, msg{Name: "a", Count: 2}, out)

	t.Run("empty body leaves zero value", func(t *testing.T) {
		var empty msg
		require.NoError(t, codec.Unmarshal(nil, &empty))
		assert.Equal(t, msg{}, empty)
	})

	t.Run("malformed body", func(t *testing.T) {
		var bad msg
		assert.Error(t, codec.Unmarshal([]byte(`{"name":`), &bad))
	})
}
