package storage

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// AttemptRow is the parquet layout of an attempt. Amounts stay decimal strings
// since raw token units overflow INT64.
type AttemptRow struct {
	CycleID       int64  `parquet:"name=cycle_id, type=INT64"`
	OpportunityID string `parquet:"name=opportunity_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind          string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	PathKind      string `parquet:"name=path_kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Route         string `parquet:"name=route, type=BYTE_ARRAY, convertedtype=UTF8"`
	BorrowToken   string `parquet:"name=borrow_token, type=BYTE_ARRAY, convertedtype=UTF8"`
	BorrowAmount  string `parquet:"name=borrow_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	GrossProfit   string `parquet:"name=gross_profit, type=BYTE_ARRAY, convertedtype=UTF8"`
	NetProfit     string `parquet:"name=net_profit, type=BYTE_ARRAY, convertedtype=UTF8"`
	GasUnits      int64  `parquet:"name=gas_units, type=INT64"`
	State         string `parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
	SkipReason    string `parquet:"name=skip_reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	Success       bool   `parquet:"name=success, type=BOOLEAN"`
	DryRun        bool   `parquet:"name=dry_run, type=BOOLEAN"`
	TxHash        string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	RevertReason  string `parquet:"name=revert_reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	BlockNumber   int64  `parquet:"name=block_number, type=INT64"`
	CreatedAtMs   int64  `parquet:"name=created_at_ms, type=INT64"`
}

func toRow(a *AttemptRecord) AttemptRow {
	return AttemptRow{
		CycleID:       a.CycleID,
		OpportunityID: a.OpportunityID,
		Kind:          a.Kind,
		PathKind:      a.PathKind,
		Route:         a.Route,
		BorrowToken:   a.BorrowToken,
		BorrowAmount:  a.BorrowAmount,
		GrossProfit:   a.GrossProfit,
		NetProfit:     a.NetProfit,
		GasUnits:      int64(a.GasUnits),
		State:         a.State,
		SkipReason:    a.SkipReason,
		Success:       a.Success,
		DryRun:        a.DryRun,
		TxHash:        a.TxHash,
		RevertReason:  a.RevertReason,
		BlockNumber:   int64(a.BlockNumber),
		CreatedAtMs:   a.CreatedAt.UnixMilli(),
	}
}

// ExportParquet writes attempts to path, snappy compressed
func ExportParquet(path string, attempts []*AttemptRecord) (int, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(AttemptRow), 4)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, a := range attempts {
		if err := pw.Write(toRow(a)); err != nil {
			return 0, fmt.Errorf("failed to write row %s: %w", a.OpportunityID, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return 0, fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return len(attempts), nil
}

// ReadParquet loads rows written by ExportParquet
func ReadParquet(path string) ([]AttemptRow, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(AttemptRow), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	rows := make([]AttemptRow, num)
	if num == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}
