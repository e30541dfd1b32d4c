package dataset

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
)

// Format is a supported file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, true
	case ".tsv", ".tab":
		return FormatTSV, true
	case ".xlsx":
		return FormatXLSX, true
	}
	return "", false
}

// Load reads a dataset file into a raw frame.
func Load(path string) (*Frame, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, errors.NewValidationError("path", "unsupported dataset format", filepath.Ext(path))
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewResourceNotFoundError("dataset", filepath.Base(path))
		}
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer file.Close()

	frame, err := Read(file, format)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset %s", filepath.Base(path))
	}
	log.GetLoggerWithName("dataset").Debug("Dataset loaded",
		log.PathKey, path,
		log.SamplesKey, frame.NumRows(),
		log.FeaturesKey, frame.NumCols(),
	)
	return frame, nil
}

// Read parses r in the given format into a raw frame.
func Read(r io.Reader, format Format) (*Frame, error) {
	switch format {
	case FormatCSV:
		return readDelimited(r, ',')
	case FormatTSV:
		return readDelimited(r, '\t')
	case FormatXLSX:
		return readXLSX(r)
	}
	return nil, errors.NewValidationError("format", "unsupported dataset format", format)
}

func readDelimited(r io.Reader, comma rune) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse delimited data")
	}
	return recordsToFrame(rows)
}

func readXLSX(r io.Reader) (*Frame, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %s", sheets[0])
	}
	return recordsToFrame(rows)
}

func recordsToFrame(rows [][]string) (*Frame, error) {
	// Drop fully blank trailing rows; spreadsheets often carry them.
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset has no header")
	}
	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return FromRecords(header, rows[1:])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes the frame with a header row.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := cw.WriteAll(f.Rows()); err != nil {
		return errors.Wrap(err, "write rows")
	}
	return nil
}

// WriteXLSX writes the frame as a single-sheet workbook. Valued cells are
// written as numbers.
func WriteXLSX(w io.Writer, f *Frame) error {
	book := excelize.NewFile()
	defer book.Close()
	const sheet = "Sheet1"

	header := make([]interface{}, f.NumCols())
	for i, n := range f.Names() {
		header[i] = n
	}
	if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, "write header")
	}

	for i := 0; i < f.NumRows(); i++ {
		row := make([]interface{}, f.NumCols())
		for j, c := range f.Columns() {
			if c.Kind == KindNumeric || c.Kind == KindCategorical {
				if s := c.Cell(i); s != "" {
					row[j] = c.Values[i]
					continue
				}
			}
			row[j] = c.Cell(i)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "write row %d", i+1)
		}
	}
	if err := book.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

// Encode renders the frame in the given format into memory.
func Encode(f *Frame, format Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatCSV:
		err = WriteCSV(&buf, f)
	case FormatXLSX:
		err = WriteXLSX(&buf, f)
	default:
		err = errors.NewValidationError("format", "unsupported export format", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
