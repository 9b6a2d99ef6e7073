// Package report renders final account snapshots.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/txengine/internal/ledger"
)

type Format string

const (
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

var ErrUnknownFormat = errors.New("unknown report format")

var header = []string{"client", "available", "held", "total", "locked"}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatTable, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Account is the wire form of a snapshot. Amounts are strings with four
// decimal places so no precision is lost in JSON.
type Account struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

func FromSnapshot(s ledger.Snapshot) Account {
	return Account{
		Client:    uint16(s.Client),
		Available: amount(s.Available),
		Held:      amount(s.Held),
		Total:     amount(s.Total),
		Locked:    s.Locked,
	}
}

func FromSnapshots(snaps []ledger.Snapshot) []Account {
	out := make([]Account, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, FromSnapshot(s))
	}

	return out
}

// Write renders snaps to w in the given format, one row per client.
func Write(w io.Writer, format Format, snaps []ledger.Snapshot) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, snaps)
	case FormatTable:
		writeTable(w, snaps)

		return nil
	case FormatJSON:
		return writeJSON(w, snaps)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeCSV(w io.Writer, snaps []ledger.Snapshot) error {
	cw := csv.NewWriter(w)

	err := cw.Write(header)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, s := range snaps {
		err = cw.Write(row(FromSnapshot(s)))
		if err != nil {
			return fmt.Errorf("write client %d: %w", s.Client, err)
		}
	}

	cw.Flush()

	err = cw.Error()
	if err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return nil
}

func writeTable(w io.Writer, snaps []ledger.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
	})

	for _, s := range snaps {
		table.Append(row(FromSnapshot(s)))
	}

	table.Render()
}

func writeJSON(w io.Writer, snaps []ledger.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(FromSnapshots(snaps))
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func row(a Account) []string {
	return []string{
		strconv.FormatUint(uint64(a.Client), 10),
		a.Available,
		a.Held,
		a.Total,
		strconv.FormatBool(a.Locked),
	}
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(ledger.AmountPlaces)
}
