// Package ingestion owns the edges of the batch: reading the staging feeds,
// exporting the derived record sets, and publishing reconciliation breaks.
// Records are validated and typed here so the engine only ever sees
// well-formed input.
package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"SecSubledger/internal/blotter"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// LoadTrades reads the securities trade blotter feed.
// Columns: trade_id, customer_id, isin, ccy, trade_date, side, quantity, price.
func LoadTrades(path string) ([]blotter.Trade, error) {
	var trades []blotter.Trade
	err := readCSV(path, []string{"trade_id", "customer_id", "isin", "ccy", "trade_date", "side", "quantity", "price"},
		func(line int, get func(string) string) error {
			date, err := time.Parse(dateLayout, get("trade_date"))
			if err != nil {
				return fmt.Errorf("trade_date: %w", err)
			}
			side, err := blotter.ParseSide(get("side"))
			if err != nil {
				return err
			}
			qty, err := decimal.NewFromString(get("quantity"))
			if err != nil {
				return fmt.Errorf("quantity: %w", err)
			}
			price, err := decimal.NewFromString(get("price"))
			if err != nil {
				return fmt.Errorf("price: %w", err)
			}

			trades = append(trades, blotter.Trade{
				TradeID:    get("trade_id"),
				CustomerID: get("customer_id"),
				Instrument: get("isin"),
				Ccy:        get("ccy"),
				TradeDate:  date,
				Side:       side,
				Quantity:   qty,
				Price:      price,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// LoadPositions reads the independently sourced position snapshot feed.
// Columns: customer_id, isin, ccy, as_of_date, position_quantity.
func LoadPositions(path string) ([]blotter.PositionSnapshot, error) {
	var positions []blotter.PositionSnapshot
	err := readCSV(path, []string{"customer_id", "isin", "ccy", "as_of_date", "position_quantity"},
		func(line int, get func(string) string) error {
			date, err := time.Parse(dateLayout, get("as_of_date"))
			if err != nil {
				return fmt.Errorf("as_of_date: %w", err)
			}
			qty, err := decimal.NewFromString(get("position_quantity"))
			if err != nil {
				return fmt.Errorf("position_quantity: %w", err)
			}

			positions = append(positions, blotter.PositionSnapshot{
				CustomerID: get("customer_id"),
				Instrument: get("isin"),
				Ccy:        get("ccy"),
				AsOfDate:   date,
				Quantity:   qty,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// LoadValuations reads a front-office MTM feed. The single-date and
// timeseries feeds share the same columns:
// customer_id, isin, ccy, as_of_date, fo_mtm.
func LoadValuations(path string) ([]blotter.ValuationSnapshot, error) {
	var valuations []blotter.ValuationSnapshot
	err := readCSV(path, []string{"customer_id", "isin", "ccy", "as_of_date", "fo_mtm"},
		func(line int, get func(string) string) error {
			date, err := time.Parse(dateLayout, get("as_of_date"))
			if err != nil {
				return fmt.Errorf("as_of_date: %w", err)
			}
			mtm, err := decimal.NewFromString(get("fo_mtm"))
			if err != nil {
				return fmt.Errorf("fo_mtm: %w", err)
			}

			valuations = append(valuations, blotter.ValuationSnapshot{
				CustomerID: get("customer_id"),
				Instrument: get("isin"),
				Ccy:        get("ccy"),
				AsOfDate:   date,
				MTM:        mtm,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}
	return valuations, nil
}

// readCSV streams a headed CSV file, resolving the required columns by name
// and handing each row to parse with a column accessor.
func readCSV(path string, required []string, parse func(line int, get func(string) string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("%s: missing column %q", path, col)
		}
	}

	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line+1, err)
		}
		line++

		get := func(col string) string { return record[index[col]] }
		if err := parse(line, get); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
}
