package outputters

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emiliensocchi/aztop/internal/message"
	"github.com/emiliensocchi/aztop/pkg/types"
)

// CSVFileSink streams rows for one module into a dated CSV file under the
// output directory, writing the header once on first open.
type CSVFileSink struct {
	path    string
	columns []string
	file    *os.File
	writer  *csv.Writer
}

// NewCSVFileFactory returns a SinkFactory creating one CSV file per module
// under outputPath, named yyyy-mm-dd_<module>.csv.
func NewCSVFileFactory(outputPath string) types.SinkFactory {
	return func(meta types.Metadata, columns []string) (types.RowSink, error) {
		filename := fmt.Sprintf("%s_%s.csv", time.Now().Format("2006-01-02"), meta.Id)
		return NewCSVFileSink(filepath.Join(outputPath, filename), columns)
	}
}

func NewCSVFileSink(path string, columns []string) (*CSVFileSink, error) {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(columns); err != nil {
		file.Close()
		return nil, err
	}

	return &CSVFileSink{
		path:    path,
		columns: columns,
		file:    file,
		writer:  writer,
	}, nil
}

// WriteRow appends one row, emitting cells in column order. Missing keys
// become empty cells.
func (s *CSVFileSink) WriteRow(row types.Row) error {
	record := make([]string, len(s.columns))
	for i, column := range s.columns {
		record[i] = row[column]
	}
	return s.writer.Write(record)
}

func (s *CSVFileSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}

	message.Success("Output written to %s", s.path)
	return nil
}
