package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swaptinsight/internal/klaviyo"
)

func TestOrderDateKeepsUpstreamText(t *testing.T) {
	at := time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
	p := purchase("o1", "P1", at, klaviyo.Properties{"$value": 12.0})
	p.RawDatetime = "2024-10-15T12:00:00+00:00"

	acc := NewAccumulator()
	_, ok := acc.AddPurchase("P1", p)
	require.True(t, ok)

	b, err := json.Marshal(acc.OrderDetails[0])
	require.NoError(t, err)
	require.Contains(t, string(b), `"date":"2024-10-15T12:00:00+00:00"`)

	var back OrderRecord
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, "2024-10-15T12:00:00+00:00", back.Date.String())
	require.True(t, back.Date.Equal(at))

	// The order index still works on the parsed instant.
	require.Equal(t, []time.Time{at}, acc.OrderTimes()["P1"])
}

func TestOrderDateCanonicalText(t *testing.T) {
	at := time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
	d := NewOrderDate(at, "2024-10-15T12:00:00Z")
	require.Equal(t, OrderDate{Time: at}, d)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"2024-10-15T12:00:00Z"`, string(b))

	var back OrderDate
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, d, back)

	require.NoError(t, json.Unmarshal([]byte(`""`), &back))
	require.Equal(t, OrderDate{}, back)
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &back))
}
