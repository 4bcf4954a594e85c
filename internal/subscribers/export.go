package subscribers

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/sheetdesk/sheetdesk/internal/apiclient"
	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/listing"
)

const (
	exportSheet    = "מנויים"
	exportPageSize = 500
)

var exportHeaders = []any{
	"מס' תיק", "קוד מנוי", "שם", "ת.ז.", "ישיבה", "ישוב",
	"זכיות", "קרן מלגות", "תשובות פרשה", "עיון הלכה", "תשובות עיון הלכה", "תשובות",
}

// Export pages through every subscriber of sheetID matching filters and
// writes them to w as an xlsx workbook. It returns the number of rows.
func Export(ctx context.Context, api *apiclient.Client, sheetID int64, filters listing.Filters, opts AnswerOptions, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	rtl := true
	if err := f.SetSheetView(exportSheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", "L1", bold); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	_ = f.SetColWidth(exportSheet, "C", "C", 24)
	_ = f.SetColWidth(exportSheet, "L", "L", 40)

	rows := 0
	for page := 1; ; page++ {
		result, err := api.ListSubscribers(ctx, sheetID, page, exportPageSize, filters)
		if err != nil {
			return rows, fmt.Errorf("export page %d: %w", page, err)
		}
		for _, s := range result.Items {
			cell, err := excelize.CoordinatesToCellName(1, rows+2)
			if err != nil {
				return rows, err
			}
			values := exportRow(s, opts)
			if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
				return rows, fmt.Errorf("export row %d: %w", rows+2, err)
			}
			rows++
		}
		if !result.HasMore || len(result.Items) == 0 {
			break
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return rows, fmt.Errorf("export write: %w", err)
	}
	return rows, nil
}

func exportRow(s domain.Subscriber, opts AnswerOptions) []any {
	halacha := ""
	if s.YiunHalacha {
		halacha = "כן"
	}
	parasha := ""
	if s.ParashaAnswersCode != "" {
		parasha = opts.Parasha.Label(s.ParashaAnswersCode)
	}
	halachaAnswers := ""
	if s.YiunHalachaAnswersCode != "" {
		halachaAnswers = opts.Halacha.Label(s.YiunHalachaAnswersCode)
	}
	return []any{
		s.FilingNumber, s.SubscriberCode, s.Name, s.IDNumber, s.Yeshiva, s.Locality,
		s.NumberOfWins, s.ScholarshipFund, parasha, halacha, halachaAnswers, s.AnswersText,
	}
}
