package maestra

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnreadable reports a master format that can be stored and handed to the
// consolidator but not inspected here.
var ErrUnreadable = errors.New("maestra: format cannot be inspected")

// Open parses the master file at path.
func Open(path string) (*Catalog, error) {
	var (
		sheet string
		rows  [][]string
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		sheet, rows, err = readWorkbook(path)
	case ".csv":
		sheet, rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, ext)
	}
	if err != nil {
		return nil, err
	}
	cat, err := build(sheet, rows)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, sheet)
	}
	return cat, nil
}

func readWorkbook(path string) (string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("maestra: open workbook: %w", err)
	}
	defer f.Close()

	sheet := pickSheet(f.GetSheetList())
	if sheet == "" {
		return "", nil, errors.New("maestra: workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", nil, fmt.Errorf("maestra: read sheet %q: %w", sheet, err)
	}
	return sheet, rows, nil
}

// pickSheet prefers a sheet of current contracts, then any contracts sheet,
// then the first one.
func pickSheet(sheets []string) string {
	for _, s := range sheets {
		upper := strings.ToUpper(s)
		if strings.Contains(upper, "CONTRATO") && strings.Contains(upper, "VIGENTE") {
			return s
		}
	}
	for _, s := range sheets {
		if strings.Contains(strings.ToUpper(s), "CONTRATO") {
			return s
		}
	}
	if len(sheets) > 0 {
		return sheets[0]
	}
	return ""
}

// readCSV accepts comma or semicolon separated files, the latter being what
// spreadsheet tools export under Spanish locales.
func readCSV(path string) (string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("maestra: read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	headerLine, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.Count(headerLine, []byte(";")) > bytes.Count(headerLine, []byte(",")) {
		r.Comma = ';'
	}
	rows, err := r.ReadAll()
	if err != nil {
		return "", nil, fmt.Errorf("maestra: parse csv: %w", err)
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), rows, nil
}
