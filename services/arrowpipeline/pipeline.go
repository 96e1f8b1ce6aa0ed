// Package arrowpipeline encodes candle series as Apache Arrow IPC streams for
// columnar consumers.
package arrowpipeline

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"motherbar-backtest/services/market"
)

// Pipeline owns the allocator used for record batches.
type Pipeline struct {
	memoryPool memory.Allocator
	logger     *zap.Logger
}

// NewPipeline builds a pipeline with the Go allocator.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		memoryPool: memory.NewGoAllocator(),
		logger:     logger,
	}
}

var candleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// EncodeCandles converts a candle series into one Arrow IPC stream.
func (p *Pipeline) EncodeCandles(rows []market.CandleRow) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no candles to encode")
	}

	timestamps := make([]int64, len(rows))
	opens := make([]float64, len(rows))
	highs := make([]float64, len(rows))
	lows := make([]float64, len(rows))
	closes := make([]float64, len(rows))
	volumes := make([]float64, len(rows))
	for i, row := range rows {
		timestamps[i] = row.Timestamp
		opens[i] = row.Open
		highs[i] = row.High
		lows[i] = row.Low
		closes[i] = row.Close
		volumes[i] = row.Volume
	}

	tsBuilder := array.NewInt64Builder(p.memoryPool)
	defer tsBuilder.Release()
	tsBuilder.AppendValues(timestamps, nil)
	tsArray := tsBuilder.NewInt64Array()
	defer tsArray.Release()

	columns := make([]arrow.Array, 0, 6)
	columns = append(columns, tsArray)
	for _, values := range [][]float64{opens, highs, lows, closes, volumes} {
		builder := array.NewFloat64Builder(p.memoryPool)
		builder.AppendValues(values, nil)
		arr := builder.NewFloat64Array()
		builder.Release()
		defer arr.Release()
		columns = append(columns, arr)
	}

	record := array.NewRecord(candleSchema, columns, int64(len(rows)))
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(candleSchema), ipc.WithAllocator(p.memoryPool))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("write record batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close ipc writer: %w", err)
	}

	p.logger.Debug("candles encoded",
		zap.Int("rows", len(rows)),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}
