package monitor

import (
	"encoding/csv"
	stderrors "errors"
	"io"
	"strings"
)

// ParseCSV parses script output where the first line names the columns and
// every following line holds values matched to those columns by position.
// Blank lines are skipped. Short lines are padded with empty values and
// extra values are dropped. Values are kept exactly as written. Output with
// no data lines yields an empty, non-nil slice.
func ParseCSV(output string) (columns []string, rows []StatusRow, err error) {
	rows = []StatusRow{}

	reader := csv.NewReader(strings.NewReader(output))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if stderrors.Is(err, io.EOF) {
		return nil, rows, nil
	}
	if err != nil {
		return nil, nil, err
	}

	for {
		record, err := reader.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		row := make(StatusRow, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			} else {
				row[column] = ""
			}
		}
		rows = append(rows, row)
	}

	return header, rows, nil
}
