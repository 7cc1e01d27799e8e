package processors

import "strings"

// tickerPointValues maps a futures contract root to the dollar value of one
// full point of price movement for one contract. Unrecognized tickers fall
// back to a multiplier of 1, which also covers plain share quantities.
var tickerPointValues = map[string]float64{
	"MNQ": 2,
	"NQ":  20,
	"MES": 5,
	"ES":  50,
	"RTY": 5,
	"M2K": 5,
	"CL":  1000,
	"MCL": 100,
	"GC":  100,
	"MGC": 10,
	"SI":  5000,
	"SIL": 1000,
	"HG":  25000,
	"PA":  100,
	"PL":  50,
	"ZB":  1000,
	"ZN":  1000,
	"ZF":  1000,
	"ZT":  1000,
	"GE":  2500,
	"BTC": 5,
	"MBT": 0.1,
}

// PointValue returns the per-instrument contract multiplier for a symbol.
// Lookup is exact after upper-casing and trimming; anything unknown is 1.
func PointValue(symbol string) float64 {
	if v, ok := tickerPointValues[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return v
	}
	return 1
}
