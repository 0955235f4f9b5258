// Package export renders bookings as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"strings"

	"courtbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const gridSheet = "Schedule"

// Row is one booking with its players.
type Row struct {
	Booking      models.Booking
	Participants []models.Participant
}

var listHeaders = []string{
	"ID", "Date", "Start", "End", "Duration (min)", "Court",
	"Organizer", "Players", "Guests", "Payment", "Court fee", "Total",
}

// WriteBookings writes a booking list sheet and a date × court schedule
// grid for [from, to] to w.
func WriteBookings(w io.Writer, sheet string, from, to models.Date, courts []models.Court, rows []Row) error {
	if sheet == "" {
		sheet = "Bookings"
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeList(f, sheet, rows); err != nil {
		return err
	}
	if _, err := f.NewSheet(gridSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeGrid(f, from, to, courts, rows); err != nil {
		return err
	}

	if sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeList(f *excelize.File, sheet string, rows []Row) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	for i, h := range listHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for i, r := range rows {
		b := r.Booking
		organizer := ""
		for _, p := range r.Participants {
			if p.IsOrganizer() {
				organizer = p.FullName()
			}
		}
		values := []interface{}{
			b.ID,
			b.Date.String(),
			b.StartTime.String(),
			b.EndTime.String(),
			b.DurationMinutes,
			b.CourtName,
			organizer,
			len(r.Participants),
			models.CountRole(r.Participants, models.RoleGuest),
			b.PaymentMethod,
			b.BasePrice.Float64(),
			b.TotalPrice.Float64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err == nil && len(rows) > 0 {
		_ = f.SetCellStyle(sheet, "K2", fmt.Sprintf("L%d", len(rows)+1), moneyStyle)
	}

	_ = f.SetColWidth(sheet, "A", "A", 8)
	_ = f.SetColWidth(sheet, "B", "F", 14)
	_ = f.SetColWidth(sheet, "G", "G", 24)
	_ = f.SetColWidth(sheet, "H", "L", 12)
	return nil
}

// writeGrid lays out dates as columns and courts as rows.
func writeGrid(f *excelize.File, from, to models.Date, courts []models.Court, rows []Row) error {
	_ = f.SetCellValue(gridSheet, "A1", fmt.Sprintf("Period: %s - %s", from, to))

	dateCols := make(map[string]int)
	col := 2
	for d := from; !d.After(to); d = d.AddDays(1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(gridSheet, cell, d.Time().Format("02.01"))
		dateCols[d.String()] = col
		col++
	}

	courtRows := make(map[string]int)
	for i, c := range courts {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(gridSheet, cell, c.Name)
		courtRows[c.ID] = i + 3
	}

	cells := make(map[string][]string)
	for _, r := range rows {
		b := r.Booking
		c, okCol := dateCols[b.Date.String()]
		rw, okRow := courtRows[b.CourtID]
		if !okCol || !okRow {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(c, rw)
		cells[cell] = append(cells[cell], fmt.Sprintf("%s-%s #%d", b.StartTime, b.EndTime, b.ID))
	}

	bookedStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	for cell, entries := range cells {
		_ = f.SetCellValue(gridSheet, cell, strings.Join(entries, "\n"))
		_ = f.SetCellStyle(gridSheet, cell, cell, bookedStyle)
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if col > 2 {
		last, _ := excelize.ColumnNumberToName(col - 1)
		_ = f.MergeCell(gridSheet, "A1", last+"1")
	}
	_ = f.SetCellStyle(gridSheet, "A1", "A1", titleStyle)
	_ = f.SetColWidth(gridSheet, "A", "A", 20)
	return nil
}
