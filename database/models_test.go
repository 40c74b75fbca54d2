package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-radar/model"
)

func sampleAlert() model.Alert {
	return model.Alert{
		ID:              model.AlertID("BTCUSDT", model.SetupShortSqueeze, 1_700_000_000_000),
		Symbol:          "BTCUSDT",
		SetupType:       model.SetupShortSqueeze,
		Severity:        model.SeverityCritical,
		Title:           "🔥 SHORT SQUEEZE SETUP: BTCUSDT",
		Description:     "Crowded shorts with rising open interest",
		Signals:         []string{"Funding at 0.4 percentile of 30d range (APR -87.6%)", "OI surged +12.5% in 8h"},
		ConfluenceScore: 95,
		Timestamp:       1_700_000_000_000,
		Data: model.AlertData{
			Funding:           -0.0008,
			FundingAPR:        -87.6,
			FundingPercentile: 0.4,
			OIChange8h:        12.5,
			VDelta1h:          8.0,
			PriceChange:       -1.2,
			Volume24h:         5_000_000_000,
		},
	}
}

func TestSignalsColumnRoundTrip(t *testing.T) {
	signals := StringArray{"first signal", "second signal"}

	v, err := signals.Value()
	require.NoError(t, err)

	var decoded StringArray
	require.NoError(t, decoded.Scan(v))
	assert.Equal(t, signals, decoded)
}

func TestSignalsColumnNilAndBytes(t *testing.T) {
	v, err := StringArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var fromBytes StringArray
	require.NoError(t, fromBytes.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, StringArray{"a", "b"}, fromBytes)

	var fromNil StringArray
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	assert.Error(t, fromBytes.Scan(42))
}

func TestPayloadColumnRoundTrip(t *testing.T) {
	payload := Payload(sampleAlert().Data)

	v, err := payload.Value()
	require.NoError(t, err)

	var decoded Payload
	require.NoError(t, decoded.Scan(v))
	assert.Equal(t, payload, decoded)
}

func TestRowConversionPreservesAlert(t *testing.T) {
	alert := sampleAlert()

	row := rowFromAlert(&alert)
	back := row.Alert()

	assert.Equal(t, alert, back)
}
