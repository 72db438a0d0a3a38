package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCSV reads a statement export into raw rows keyed by column name.
// With hasHeaderRow the first record names the columns; without it, columns
// are keyed by zero-based index ("0", "1", ...) and mappings must use those.
// Short records simply lack the trailing keys, which the normalizer reports
// as missing-column validation failures.
func ReadCSV(r io.Reader, hasHeaderRow bool) ([]map[string]string, error) {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	var columns []string
	if hasHeaderRow {
		for _, name := range records[0] {
			columns = append(columns, strings.TrimSpace(name))
		}
		records = records[1:]
	}

	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		// Skip fully blank lines.
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}

		row := make(map[string]string, len(record))
		for i, field := range record {
			if hasHeaderRow {
				if i < len(columns) && columns[i] != "" {
					row[columns[i]] = field
				}
			} else {
				row[strconv.Itoa(i)] = field
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// ReadCSVFile opens and reads a statement export from disk.
func ReadCSVFile(path string, hasHeaderRow bool) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close %s: %v\n", path, closeErr)
		}
	}()

	rows, err := ReadCSV(f, hasHeaderRow)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}
