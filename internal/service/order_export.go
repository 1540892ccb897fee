package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"dineflow/internal/domain"
	"dineflow/internal/repository"
)

// maxExportRows caps a single export
const maxExportRows = 10000

// EventRecorder records non-mutation audit events
type EventRecorder interface {
	RecordEvent(ctx context.Context, action domain.AuditAction, e domain.Entity, recordID string, metadata map[string]any)
}

var orderExportHeader = []string{
	"Order Number",
	"Status",
	"Version",
	"Table",
	"Customer",
	"Phone",
	"Items",
	"Subtotal",
	"Tax",
	"Total",
	"Estimated Minutes",
	"Placed At",
	"Completed At",
}

var orderExportWidths = []float64{20, 12, 9, 38, 20, 16, 8, 12, 10, 12, 10, 22, 22}

// ExportOrders renders the filtered orders as an .xlsx workbook and records an
// EXPORT audit event. Exporting is authorized separately from reading.
func (s *OrderService) ExportOrders(ctx context.Context, req ListOrdersRequest, recorder EventRecorder) ([]byte, int, error) {
	where, err := listFilter(req)
	if err != nil {
		return nil, 0, err
	}
	recs, err := s.gw.Export(ctx, domain.EntityOrder, repository.Query{
		Where:   where,
		OrderBy: []repository.OrderBy{{Column: "placed_at"}, {Column: "order_number"}},
		Limit:   maxExportRows,
	})
	if err != nil {
		return nil, 0, err
	}
	orders := make([]*domain.Order, 0, len(recs))
	for _, rec := range recs {
		orders = append(orders, orderFromRecord(rec))
	}
	if err := s.attachItems(ctx, s.gw, orders); err != nil {
		return nil, 0, err
	}

	data, err := renderOrdersWorkbook(orders)
	if err != nil {
		return nil, 0, err
	}

	if recorder != nil {
		meta := map[string]any{"format": "xlsx", "rows": len(orders)}
		if req.Status != "" {
			meta["status"] = req.Status
		}
		if req.FromDate != nil {
			meta["from"] = req.FromDate.UTC().Format(time.RFC3339)
		}
		if req.ToDate != nil {
			meta["to"] = req.ToDate.UTC().Format(time.RFC3339)
		}
		recorder.RecordEvent(ctx, domain.AuditExport, domain.EntityOrder, "", meta)
	}
	return data, len(orders), nil
}

func renderOrdersWorkbook(orders []*domain.Order) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Orders"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, h := range orderExportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, orderExportWidths[i]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for r, o := range orders {
		row := []any{
			o.OrderNumber,
			string(o.Status),
			o.Version,
			deref(o.TableID),
			deref(o.CustomerName),
			deref(o.CustomerPhone),
			len(o.Items),
			o.Subtotal.InexactFloat64(),
			o.Tax.InexactFloat64(),
			o.Total.InexactFloat64(),
			o.EstimatedTime,
			o.PlacedAt.UTC().Format(time.RFC3339),
			formatTimePtr(o.CompletedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", r+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
