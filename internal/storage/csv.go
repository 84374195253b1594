package storage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/listing-builder/internal/models"
)

var ErrNoURLColumn = errors.New("input has no url column")

// ReadURLs loads the product URLs to scrape. CSV input needs a "url" header;
// any other file is read as one URL per line. Blank entries are skipped.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return readCSVURLs(f)
	}
	return readLineURLs(f)
}

func readCSVURLs(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoURLColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), "url") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoURLColumn
	}

	var urls []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if col >= len(row) {
			continue
		}
		if u := strings.TrimSpace(row[col]); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

func readLineURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return urls, nil
}

var summaryHeader = []string{"url", "title", "image_urls", "description_html", "error"}

// WriteSummary writes one row per result. Failed URLs keep their row with
// empty product fields and the error tag filled in.
func WriteSummary(path string, results []models.ScrapeResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create summary: %v", ErrArtifactWrite, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}

	for _, res := range results {
		row := []string{res.URL, "", "", "", res.Error.Tag()}
		if res.Record != nil {
			row[1] = res.Record.Title
			row[2] = strings.Join(res.Record.ImageURLs, "|")
			row[3] = res.Record.DescriptionHTML
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactWrite, err)
	}
	return nil
}
