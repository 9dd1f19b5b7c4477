package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loaded struct {
	Table  string `json:"table"`
	Tenant string `json:"tenant_id"`
}

func TestEncode(t *testing.T) {
	msg, err := encode("transform.completed", "visionamos", map[string]any{"run_id": "r1", "rows": 3})
	require.NoError(t, err)
	assert.Equal(t, "transform.completed", msg.Topic)
	assert.Equal(t, []byte("visionamos"), msg.Key)
	assert.JSONEq(t, `{"run_id":"r1","rows":3}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "application/json", string(msg.Headers[0].Value))

	_, err = encode("t", "k", func() {})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[loaded]([]byte(`{"table":"raw.raw_push_stats","tenant_id":"acme"}`))
	require.NoError(t, err)
	assert.Equal(t, loaded{Table: "raw.raw_push_stats", Tenant: "acme"}, got)

	_, err = DecodeJSON[loaded]([]byte(`not json`))
	assert.Error(t, err)
}
