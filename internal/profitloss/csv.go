package profitloss

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteReportCSV serialises the daily breakdown followed by the range
// totals as CSV.
func WriteReportCSV(w io.Writer, report Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Revenue", "Purchase Cost", "Expenses", "Gross Profit", "Net Profit"}); err != nil {
		return err
	}
	for _, day := range report.Daily {
		record := []string{
			day.Date,
			formatFloat(day.Revenue),
			formatFloat(day.PurchaseCost),
			formatFloat(day.Expenses),
			formatFloat(day.GrossProfit),
			formatFloat(day.NetProfit),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	totals := []string{
		"TOTAL",
		formatFloat(report.Summary.Revenue),
		formatFloat(report.Summary.PurchaseCost),
		formatFloat(report.Summary.Expenses),
		formatFloat(report.Summary.GrossProfit),
		formatFloat(report.Summary.NetProfit),
	}
	if err := writer.Write(totals); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
