package gs1_test

import (
	"testing"

	"github.com/pharmtrace/pharmtrace-backend/internal/identity/gs1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FNC1Separated(t *testing.T) {
	raw := "010030143095701017270531" + "10BATCH1" + "\x1d" + "21SERAB7"

	data, err := gs1.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "00301430957010", data.GTIN)
	assert.Equal(t, "2027-05-31", data.ExpirationDate)
	assert.Equal(t, "BATCH1", data.LotNumber)
	assert.Equal(t, "SERAB7", data.SerialNumber)
	assert.Equal(t, "01430-9570", data.NDC)
}

func TestParse_TrailingSerialStopsAtEmbeddedAI(t *testing.T) {
	// An unterminated trailing value ends where a known AI digit pair begins.
	// "SER001" carries "01" at offset 4, so only "SER0" survives; serials that
	// must contain such pairs need an FNC1 terminator.
	raw := "0100301430957010" + "21SER001"

	data, err := gs1.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "SER0", data.SerialNumber)
}

func TestParse_HardwareScannerSeparator(t *testing.T) {
	// The Tera D5100 emits "029" in place of FNC1. It must be honored as a
	// separator only when a known AI follows.
	raw := "0100301430957010" + "029" + "21SER123" + "029" + "10LOT7"

	data, err := gs1.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "00301430957010", data.GTIN)
	assert.Equal(t, "SER123", data.SerialNumber)
	assert.Equal(t, "LOT7", data.LotNumber)
}

func TestParse_NextAIWithoutSeparator(t *testing.T) {
	raw := "0100301430957010" + "21S12345" + "10LOTX"

	data, err := gs1.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "S12345", data.SerialNumber)
	assert.Equal(t, "LOTX", data.LotNumber)
}

func TestParse_029InsideValue(t *testing.T) {
	// "029" followed by something that is not an AI belongs to the value.
	raw := "0100301430957010" + "21S029X7" + "\x1d" + "10L1"

	data, err := gs1.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "S029X7", data.SerialNumber)
	assert.Equal(t, "L1", data.LotNumber)
}

func TestParse_SymbologyPrefixSkipped(t *testing.T) {
	raw := "]d2" + "0100301430957010" + "\x1d" + "21SER9"

	data, err := gs1.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "00301430957010", data.GTIN)
	assert.Equal(t, "SER9", data.SerialNumber)
}

func TestParse_DateCenturyPivot(t *testing.T) {
	tests := []struct {
		yymmdd string
		want   string
	}{
		{"270531", "2027-05-31"},
		{"490101", "2049-01-01"},
		{"500101", "1950-01-01"},
		{"991231", "1999-12-31"},
	}

	for _, tt := range tests {
		data, err := gs1.Parse("0100301430957010" + "17" + tt.yymmdd)
		require.NoError(t, err)
		assert.Equal(t, tt.want, data.ExpirationDate, tt.yymmdd)
	}
}

func TestParse_NoNDCForForeignPrefix(t *testing.T) {
	data, err := gs1.Parse("0104012345678903" + "\x1d" + "21X1")
	require.NoError(t, err)
	assert.Equal(t, "04012345678903", data.GTIN)
	assert.Empty(t, data.NDC)
}

func TestParse_Invalid(t *testing.T) {
	_, err := gs1.Parse("")
	assert.Error(t, err)

	_, err = gs1.Parse("   ")
	assert.Error(t, err)

	_, err = gs1.Parse("zzzz")
	assert.Error(t, err)
}
