package telephony

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"crm-telephony/internal/ringcentral"
)

func mustRecord(t *testing.T, raw string) ringcentral.CallLogRecord {
	t.Helper()
	var rec ringcentral.CallLogRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}
