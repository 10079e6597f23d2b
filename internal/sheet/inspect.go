package sheet

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are not Excel workbooks.
var ErrUnsupportedFormat = errors.New("please select a valid Excel file (.xlsx or .xls)")

// AllowedExtensions lists the upload formats the workflow accepts.
var AllowedExtensions = []string{".xlsx", ".xls"}

// Summary describes an uploaded workbook.
type Summary struct {
	Sheets   []string
	DataRows int // rows in the first sheet, header included
	Parsed   bool
}

// CheckExtension rejects file names without an allowed extension.
func CheckExtension(fileName string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return ErrUnsupportedFormat
}

// Inspect opens the workbook at path. Legacy .xls files cannot be parsed and
// are accepted on their extension alone.
func Inspect(path, fileName string) (Summary, error) {
	if err := CheckExtension(fileName); err != nil {
		return Summary{}, err
	}
	if strings.ToLower(filepath.Ext(fileName)) == ".xls" {
		return Summary{}, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Summary{}, fmt.Errorf("%w: workbook has no sheets", ErrUnsupportedFormat)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return Summary{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Error(); err != nil {
		return Summary{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	return Summary{Sheets: sheets, DataRows: count, Parsed: true}, nil
}
