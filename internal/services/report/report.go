// Package report выгружает дневное использование агента в xlsx.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/magabrotheeeer/cohost-credits/internal/models"
)

// Имена листов отчёта.
const (
	SheetSummary  = "Summary"
	SheetEvents   = "Events"
	SheetSessions = "Sessions"
)

// Input данные для отчёта.
type Input struct {
	Status    models.SubscriptionStatus
	Histogram models.UsageHistogram
	Daily     models.DailyUsage
	Location  *time.Location
}

// Export пишет книгу с листами Summary, Events и Sessions в w.
func Export(w io.Writer, in Input) error {
	const op = "report.Export"
	f, err := Build(in)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Build собирает книгу в памяти.
func Build(in Input) (*excelize.File, error) {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetEvents, SheetSessions} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4F46E5"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	if err := writeSummary(f, in, header); err != nil {
		return nil, err
	}
	if err := writeEvents(f, in.Histogram.Events, loc, header); err != nil {
		return nil, err
	}
	if err := writeSessions(f, in.Daily.Sessions, loc, header); err != nil {
		return nil, err
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func writeHeader(f *excelize.File, sheet string, style int, titles ...any) error {
	if err := writeRow(f, sheet, 1, titles...); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(titles), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeSummary(f *excelize.File, in Input, style int) error {
	if err := writeHeader(f, SheetSummary, style, "Metric", "Value"); err != nil {
		return err
	}
	rows := [][]any{
		{"Email", in.Status.Email},
		{"Status", string(in.Status.Status)},
		{"Package", string(in.Status.Package)},
		{"Credit balance", in.Status.CreditBalance},
		{"Credit used", in.Status.CreditUsed},
		{"Date", in.Histogram.Date},
		{"Credits today", in.Histogram.TotalCredits},
		{"Hours today", in.Daily.TotalHoursUsed},
		{"Daily limit reached", in.Daily.IsLimited},
	}

	components := make([]string, 0, len(in.Histogram.Components))
	for c := range in.Histogram.Components {
		components = append(components, string(c))
	}
	sort.Strings(components)
	for _, c := range components {
		cu := in.Histogram.Components[models.Component(c)]
		rows = append(rows, []any{fmt.Sprintf("%s credits (%d calls)", c, cu.Count), cu.Credits})
	}

	for i, r := range rows {
		if err := writeRow(f, SheetSummary, i+2, r...); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetSummary, "A", "B", 28)
}

func writeEvents(f *excelize.File, events []models.UsageEvent, loc *time.Location, style int) error {
	if err := writeHeader(f, SheetEvents, style, "No", "Time", "Component", "Variant", "Units", "Credits"); err != nil {
		return err
	}
	for i, ev := range events {
		if err := writeRow(f, SheetEvents, i+2,
			i+1,
			ev.Timestamp.In(loc).Format("2006-01-02 15:04:05"),
			string(ev.Component),
			ev.Variant,
			ev.Units,
			ev.Credits,
		); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetEvents, "B", "B", 20); err != nil {
		return err
	}
	return f.SetColWidth(SheetEvents, "C", "F", 14)
}

func writeSessions(f *excelize.File, sessions []models.Session, loc *time.Location, style int) error {
	if err := writeHeader(f, SheetSessions, style, "No", "Start", "End", "Minutes"); err != nil {
		return err
	}
	for i, s := range sessions {
		if err := writeRow(f, SheetSessions, i+2,
			i+1,
			s.Start.In(loc).Format("2006-01-02 15:04:05"),
			s.End.In(loc).Format("2006-01-02 15:04:05"),
			s.Duration/60,
		); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetSessions, "B", "C", 20)
}
