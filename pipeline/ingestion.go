package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"sbsk/ml"
)

// LoadOptions controls how a training spreadsheet is read.
type LoadOptions struct {
	// Sheet is the workbook sheet to read; empty means the first one.
	Sheet string
	// Encoding of CSV input: "utf-8" (default) or "windows-1252".
	Encoding string
	Renames  map[string]string
}

// DatasetLoader reads spreadsheets into datasets with cleaned headers.
type DatasetLoader struct {
	opts    LoadOptions
	cleaner *HeaderCleaner
	logger  *zap.Logger
}

func NewDatasetLoader(opts LoadOptions, logger *zap.Logger) *DatasetLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetLoader{
		opts:    opts,
		cleaner: NewHeaderCleaner(opts.Renames),
		logger:  logger,
	}
}

// Load reads an .xlsx or .csv file.
func (l *DatasetLoader) Load(path string) (*ml.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ds, err := l.Read(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ds, nil
}

// Read parses r, choosing the format from name's extension.
func (l *DatasetLoader) Read(r io.Reader, name string) (*ml.Dataset, error) {
	var (
		table [][]string
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx", ".xlsm":
		table, err = l.readWorkbook(r)
	case ".csv":
		table, err = l.readCSV(r)
	case ".xls":
		return nil, errors.New("legacy .xls workbooks are not supported, save as .xlsx")
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}
	return l.build(table)
}

func (l *DatasetLoader) readWorkbook(r io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer book.Close()

	sheet := l.opts.Sheet
	if sheet == "" {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	// stored values, not display text: "1,234.50" or "800.00%" would not parse
	return book.GetRows(sheet, excelize.Options{RawCellValue: true})
}

func (l *DatasetLoader) readCSV(r io.Reader) ([][]string, error) {
	switch strings.ToLower(l.opts.Encoding) {
	case "", "utf-8", "utf8":
	case "windows-1252", "cp1252", "latin1":
		r = transform.NewReader(r, charmap.Windows1252.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported csv encoding %q", l.opts.Encoding)
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	table, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(table) > 0 && len(table[0]) > 0 {
		table[0][0] = strings.TrimPrefix(table[0][0], "\ufeff")
	}
	return table, nil
}

// build cleans the header row, pads short rows and skips blank ones.
func (l *DatasetLoader) build(table [][]string) (*ml.Dataset, error) {
	if len(table) == 0 {
		return nil, errors.New("file has no header row")
	}
	columns, issues := l.cleaner.Clean(table[0])
	for _, issue := range issues {
		l.logger.Info("header cleaned",
			zap.String("type", issue.Type),
			zap.String("column", issue.Column),
			zap.String("message", issue.Message),
		)
	}

	ds := &ml.Dataset{Columns: columns}
	skipped := 0
	for _, raw := range table[1:] {
		if blank(raw) {
			skipped++
			continue
		}
		row := make([]string, len(columns))
		copy(row, raw)
		ds.Rows = append(ds.Rows, row)
	}
	if skipped > 0 {
		l.logger.Debug("skipped blank rows", zap.Int("count", skipped))
	}
	l.logger.Info("dataset loaded", zap.Int("columns", len(columns)), zap.Int("rows", len(ds.Rows)))
	return ds, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Preview returns the header and the first n rows of ds.
func Preview(ds *ml.Dataset, n int) *ml.Dataset {
	if n > len(ds.Rows) {
		n = len(ds.Rows)
	}
	if n < 0 {
		n = 0
	}
	return &ml.Dataset{Columns: ds.Columns, Rows: ds.Rows[:n]}
}
