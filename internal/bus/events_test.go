package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRefreshRequest(t *testing.T) {
	evt, err := Decode[RefreshRequest]([]byte(`{"request_id":"r-1","source":"prod","requested_at":"2024-05-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "r-1", evt.RequestID)
	assert.Equal(t, "prod", evt.Source)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), evt.RequestedAt)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode[InventoryRefreshed]([]byte(`{"run_id":`))
	assert.Error(t, err)
}

func TestWhitelistEventWireFormat(t *testing.T) {
	data, err := json.Marshal(WhitelistEvent{Action: WhitelistRemoved, IDs: []int64{3, 4}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"removed","ids":[3,4],"occurred_at":"0001-01-01T00:00:00Z"}`, string(data))
}
