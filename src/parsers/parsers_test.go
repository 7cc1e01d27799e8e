package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormatOrders(t *testing.T) {
	header := []byte("orderId,Account,Contract,B/S,filledQty,avgPrice,Date,Fill Time,Status\n")
	format, err := DetectFormat(header)
	require.NoError(t, err)
	assert.Equal(t, FormatOrders, format)
}

func TestDetectFormatTrades(t *testing.T) {
	for _, header := range []string{
		"Symbol,Direction,Entry Date,Entry Price,Exit Date,Exit Price,Quantity\n",
		"Ticker,Direction,Entry Date,Entry Price,Quantity\n",
		"Contract,Direction,Entry Date,Entry Price,Quantity\n",
	} {
		format, err := DetectFormat([]byte(header))
		require.NoError(t, err, header)
		assert.Equal(t, FormatTrades, format, header)
	}
}

func TestDetectFormatOrdersWinsOverSymbol(t *testing.T) {
	// A header carrying both a side column and a symbol column is an order
	// export; the side column is the decisive marker.
	format, err := DetectFormat([]byte("Contract,B/S,filledQty\n"))
	require.NoError(t, err)
	assert.Equal(t, FormatOrders, format)
}

func TestDetectFormatUnknown(t *testing.T) {
	_, err := DetectFormat([]byte("foo,bar,baz\n"))
	assert.Error(t, err)
}

func TestDetectFormatEmptyFile(t *testing.T) {
	_, err := DetectFormat(nil)
	assert.Error(t, err)
}
