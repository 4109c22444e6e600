package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"qrstudio/internal/domain"
	"qrstudio/internal/etl"
)

// csvFileSource reads campaign rows from a local CSV file. Cell values stay
// strings so phone numbers and zip codes keep their leading zeros.
type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

const schemaSampleRows = 50

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		Icon:  "IconFileTypeCsv",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Default: ",", Help: "Column delimiter"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Options: []string{"true", "false"}, Default: "true"},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	f, r, headers, err := openCSV(cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numeric := make([]bool, len(headers))
	for i := range numeric {
		numeric[i] = true
	}
	sampled := 0
	for sampled < schemaSampleRows {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if blankRow(row) {
			continue
		}
		sampled++
		for i := range headers {
			if i >= len(row) || !isNumber(row[i]) {
				numeric[i] = false
			}
		}
	}

	schema := &etl.Schema{Fields: make([]etl.Field, len(headers))}
	for i, h := range headers {
		typ := "text"
		if sampled > 0 && numeric[i] {
			typ = "number"
		}
		schema.Fields[i] = etl.Field{Name: h, Type: typ}
	}
	return schema, nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, r, headers, err := openCSV(cfg)
		if err != nil {
			errCh <- err
			return
		}
		defer f.Close()

		for line := 2; ; line++ {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("parse csv line %d: %w", line, err)
				return
			}
			if blankRow(row) {
				continue
			}
			data := make(map[string]any, len(headers))
			for i, h := range headers {
				if i < len(row) {
					data[h] = strings.TrimSpace(row[i])
				} else {
					data[h] = ""
				}
			}
			select {
			case out <- etl.Record{Data: data}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

// openCSV opens the file and consumes the header row. Without a header the
// first row is pushed back by reopening.
func openCSV(cfg etl.SourceConfig) (*os.File, *csv.Reader, []string, error) {
	path := cfg.String("filePath")
	if path == "" {
		return nil, nil, nil, fmt.Errorf("%w: filePath is required", domain.ErrValidation)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open csv: %w", err)
	}
	newReader := func() *csv.Reader {
		r := csv.NewReader(f)
		if d := cfg.String("delimiter"); d != "" {
			r.Comma = []rune(d)[0]
		}
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		r.FieldsPerRecord = -1
		return r
	}

	r := newReader()
	first, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, nil, nil, fmt.Errorf("%w: csv file is empty", domain.ErrValidation)
		}
		return nil, nil, nil, fmt.Errorf("parse csv header: %w", err)
	}

	if !strings.EqualFold(cfg.String("hasHeader"), "false") {
		headers := make([]string, len(first))
		for i, h := range first {
			headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
			if headers[i] == "" {
				headers[i] = fmt.Sprintf("col_%d", i+1)
			}
		}
		return f, r, headers, nil
	}

	headers := make([]string, len(first))
	for i := range headers {
		headers[i] = fmt.Sprintf("col_%d", i+1)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("rewind csv: %w", err)
	}
	return f, newReader(), headers, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || (len(s) > 1 && s[0] == '0' && s[1] != '.') {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
