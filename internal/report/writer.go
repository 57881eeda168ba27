package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/rendis/browseract/pkg/schema"
)

// Output file names inside a report directory.
const (
	JSONFile = "report.json"
	CSVFile  = "report.csv"
	XLSXFile = "report.xlsx"

	xlsxSheet = "report"
)

// Columns is the header shared by the CSV and XLSX outputs.
var Columns = []string{"site", "url", "company", "title", "salary", "location", "ok", "error"}

// Paths lists the files written by Write.
type Paths struct {
	JSON string `json:"json"`
	CSV  string `json:"csv"`
	XLSX string `json:"xlsx"`
}

// Rows renders one row per job in Columns order. ok is rendered OK or FAIL.
func Rows(rep schema.DailyReport) [][]string {
	rows := make([][]string, 0, len(rep.Items))
	for _, item := range rep.Items {
		ok := "FAIL"
		if item.OK {
			ok = "OK"
		}
		rows = append(rows, []string{
			rep.Site,
			item.Job.URL,
			item.Job.Company,
			item.Job.Title,
			item.Job.Salary,
			item.Job.Location,
			ok,
			item.Error,
		})
	}
	return rows
}

// Write writes the JSON, CSV and XLSX renderings of rep into dir.
func Write(rep schema.DailyReport, dir string) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create report dir: %w", err)
	}
	var p Paths
	var err error
	if p.JSON, err = WriteJSON(rep, dir); err != nil {
		return p, err
	}
	if p.CSV, err = WriteCSV(rep, dir); err != nil {
		return p, err
	}
	if p.XLSX, err = WriteXLSX(rep, dir); err != nil {
		return p, err
	}
	return p, nil
}

// WriteJSON writes the full result tree, indented, to dir/report.json.
func WriteJSON(rep schema.DailyReport, dir string) (string, error) {
	path := filepath.Join(dir, JSONFile)
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// WriteCSV writes one row per job to dir/report.csv.
func WriteCSV(rep schema.DailyReport, dir string) (string, error) {
	path := filepath.Join(dir, CSVFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(Rows(rep)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}

// WriteXLSX writes the CSV columns into the "report" sheet of dir/report.xlsx.
func WriteXLSX(rep schema.DailyReport, dir string) (string, error) {
	path := filepath.Join(dir, XLSXFile)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return "", fmt.Errorf("xlsx: %w", err)
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return "", fmt.Errorf("xlsx header: %w", err)
	}
	for i, row := range Rows(rep) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", fmt.Errorf("xlsx: %w", err)
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return "", fmt.Errorf("xlsx row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (schema.DailyReport, error) {
	var rep schema.DailyReport
	data, err := os.ReadFile(path)
	if err != nil {
		return rep, fmt.Errorf("read report: %w", err)
	}
	if err := json.Unmarshal(data, &rep); err != nil {
		return rep, fmt.Errorf("decode report %s: %w", path, err)
	}
	return rep, nil
}
