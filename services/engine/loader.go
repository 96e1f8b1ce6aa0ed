package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"motherbar-backtest/services/market"
)

// LoadSecondBars reads a second-bar CSV file. Expected columns:
// timestamp,open,high,low,close,volume with a header row. UTF-16 input with a
// BOM is decoded transparently.
func LoadSecondBars(path string) ([]market.SecondBar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	br := bufio.NewReader(file)
	if bom, _ := br.Peek(2); len(bom) >= 2 &&
		((bom[0] == 0xFF && bom[1] == 0xFE) || (bom[0] == 0xFE && bom[1] == 0xFF)) {
		reader = transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	} else {
		reader = br
	}

	return ParseSecondBars(reader)
}

// ParseSecondBars parses the CSV stream into ordered second bars. Malformed
// rows and out-of-order timestamps are fatal: the replay engine requires a
// clean, non-decreasing stream.
func ParseSecondBars(r io.Reader) ([]market.SecondBar, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var bars []market.SecondBar
	var lastMs int64 = -1
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 && strings.HasPrefix(strings.ToLower(strings.TrimPrefix(line, "\uFEFF")), "timestamp") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 6 {
			return nil, fmt.Errorf("line %d: expected 6 fields, got %d", lineNo, len(fields))
		}

		ts, err := market.ParseTimestamp(strings.TrimPrefix(fields[0], "\uFEFF"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		values := make([]float64, 5)
		for i, f := range fields[1:6] {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid numeric value %q", lineNo, f)
			}
			values[i] = v
		}

		ms := ts.UnixMilli()
		if ms < lastMs {
			return nil, fmt.Errorf("line %d: out-of-order timestamp %s", lineNo, ts.Raw)
		}
		lastMs = ms

		bars = append(bars, market.SecondBar{
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return bars, nil
}
