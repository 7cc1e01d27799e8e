// Package parsers detects the layout of an uploaded delimited file and routes
// it to the matching parser implementation.
package parsers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// Format identifies which import path a file takes.
type Format string

const (
	// FormatOrders is a brokerage order-fill export (one row per fill).
	// This is the path through the FIFO reconciliation engine.
	FormatOrders Format = "orders"
	// FormatTrades is a generic already-matched trade list.
	FormatTrades Format = "trades"
)

func init() {
	// Broker exports are sloppy: padded values, occasional short rows,
	// unbalanced quotes. Relax the reader rather than rejecting whole files.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		return r
	})
}

// DetectFormat inspects the header row of a delimited file. The presence of a
// side-indicator column ("B/S") marks a brokerage order export; anything else
// with a recognizable symbol column is treated as a generic trade list.
func DetectFormat(data []byte) (Format, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return "", fmt.Errorf("file has no header row")
	}
	header := scanner.Text()

	fields, err := csv.NewReader(strings.NewReader(header)).Read()
	if err != nil {
		return "", fmt.Errorf("unreadable header row: %w", err)
	}

	hasSide := false
	hasSymbol := false
	for _, f := range fields {
		switch strings.TrimSpace(f) {
		case "B/S":
			hasSide = true
		case "Contract", "Symbol", "Ticker":
			hasSymbol = true
		}
	}

	if hasSide {
		return FormatOrders, nil
	}
	if hasSymbol {
		return FormatTrades, nil
	}
	return "", fmt.Errorf("unrecognized file header: %q", header)
}
