// Package records reads raw transaction rows from CSV input and decodes them
// into ledger transactions.
//
// A Source hands out records in file order and stamps each one with a
// contiguous Index starting at zero. Decoding is a pure function of the
// record, so any number of goroutines may call Layout.Decode concurrently.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RawRecord is one undecoded row and its position in the input.
type RawRecord struct {
	Index  uint64
	Fields []string
}

// Source yields records in input order and returns io.EOF once exhausted.
type Source interface {
	Next() (RawRecord, error)
}

var (
	ErrMissingHeader = errors.New("missing header")
	ErrMissingColumn = errors.New("missing required column")
)

// CSVSource reads records from a CSV stream with a header row.
type CSVSource struct {
	r      *csv.Reader
	layout Layout
	next   uint64
}

// NewCSVSource consumes the header row of r and returns a source positioned
// at the first data row.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}

		return nil, fmt.Errorf("read header: %w", err)
	}

	layout, err := NewLayout(header)
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	return &CSVSource{r: cr, layout: layout}, nil
}

// Layout returns the column layout taken from the header.
func (s *CSVSource) Layout() Layout {
	return s.layout
}

func (s *CSVSource) Next() (RawRecord, error) {
	fields, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return RawRecord{}, io.EOF
		}

		return RawRecord{}, fmt.Errorf("read record %d: %w", s.next, err)
	}

	rec := RawRecord{Index: s.next, Fields: fields}
	s.next++

	return rec, nil
}

// Layout maps the columns the decoder needs to their header positions.
type Layout struct {
	typ    int
	client int
	tx     int
	amount int // -1 when the header has no amount column
}

func NewLayout(header []string) (Layout, error) {
	l := Layout{typ: -1, client: -1, tx: -1, amount: -1}

	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "type":
			l.typ = i
		case "client":
			l.client = i
		case "tx":
			l.tx = i
		case "amount":
			l.amount = i
		}
	}

	switch {
	case l.typ < 0:
		return Layout{}, fmt.Errorf("%w: type", ErrMissingColumn)
	case l.client < 0:
		return Layout{}, fmt.Errorf("%w: client", ErrMissingColumn)
	case l.tx < 0:
		return Layout{}, fmt.Errorf("%w: tx", ErrMissingColumn)
	}

	return l, nil
}

// DefaultLayout is the column order type,client,tx,amount.
func DefaultLayout() Layout {
	return Layout{typ: 0, client: 1, tx: 2, amount: 3}
}
