// Package report renders order listings as xlsx workbooks.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

// Sheet names
const (
	OrdersSheet  = "Orders"
	SummarySheet = "Summary"
)

var orderHeader = []interface{}{
	"ID", "Type", "Status", "Critical", "Patient", "Description",
	"Ordered By", "Bed", "Invoice", "Billing Pending", "Cancel Reason",
	"Ordered At", "Updated At",
}

// timeLayout is used for timestamps so spreadsheets sort them lexically
const timeLayout = "2006-01-02 15:04:05"

// WriteOrders writes an Orders sheet with one row per entity and a Summary
// sheet counting entities by type and status.
func WriteOrders(w io.Writer, orders []*entity.WorkflowEntity) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", OrdersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetRow(OrdersSheet, "A1", &orderHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(OrdersSheet, 1, 1, header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, o := range orders {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			o.ID,
			o.EntityType.String(),
			o.Status.String(),
			yesNo(o.IsCritical),
			o.PatientID,
			o.Description,
			o.OrderedBy,
			o.BedRef,
			o.InvoiceID,
			yesNo(o.BillingPending),
			o.CancelReason,
			formatTime(o.OrderedAt),
			formatTime(o.UpdatedAt),
		}
		if err := f.SetSheetRow(OrdersSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(OrdersSheet, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(OrdersSheet, "B", "M", 18); err != nil {
		return err
	}

	if err := writeSummary(f, orders, header); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, orders []*entity.WorkflowEntity, header int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	type key struct{ entityType, status string }
	counts := make(map[key]int)
	for _, o := range orders {
		counts[key{o.EntityType.String(), o.Status.String()}]++
	}

	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityType != keys[j].entityType {
			return keys[i].entityType < keys[j].entityType
		}
		return keys[i].status < keys[j].status
	})

	if err := f.SetSheetRow(SummarySheet, "A1", &[]interface{}{"Type", "Status", "Count"}); err != nil {
		return err
	}
	if err := f.SetRowStyle(SummarySheet, 1, 1, header); err != nil {
		return err
	}
	for i, k := range keys {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &[]interface{}{k.entityType, k.status, counts[k]}); err != nil {
			return err
		}
	}

	total, err := excelize.CoordinatesToCellName(1, len(keys)+2)
	if err != nil {
		return err
	}
	return f.SetSheetRow(SummarySheet, total, &[]interface{}{"Total", "", len(orders)})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
