// Package extract unpacks uploaded ZIP archives and scans the contained log
// files for error and warning patterns.
package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// supportedExtensions are the file types treated as logs inside an archive.
var supportedExtensions = []string{".log", ".txt", ".out", ".err", ".trace"}

const (
	sampleLines    = 10
	maxFileBytes   = 50 * 1024 * 1024
	maxTimestamps  = 200
	maxPerFileHits = 500
)

// Finding is one pattern hit inside a log file.
type Finding struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
	Pattern    string `json:"pattern"`
}

// FileReport summarizes one extracted log file.
type FileReport struct {
	Filename  string    `json:"filename"`
	LineCount int       `json:"line_count"`
	Errors    []Finding `json:"errors"`
	Warnings  []Finding `json:"warnings"`
	Sample    []string  `json:"sample_content"`
}

// Summary is the extraction stage's output artifact.
type Summary struct {
	Files      []FileReport `json:"files"`
	TotalLines int          `json:"total_lines"`
	Timestamps []string     `json:"timestamps"`
}

// Archive unpacks a ZIP archive from memory and scans every supported log
// file. Files with unsupported extensions are skipped; an archive with no log
// files yields an empty summary, not an error.
func Archive(data []byte) (Summary, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, fmt.Errorf("open archive: %w", err)
	}

	var sum Summary
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || !isLogFile(f.Name) {
			continue
		}
		content, err := readArchiveFile(f)
		if err != nil {
			return Summary{}, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		report := scanFile(path.Base(f.Name), content, &sum)
		sum.Files = append(sum.Files, report)
		sum.TotalLines += report.LineCount
	}
	return sum, nil
}

func isLogFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range supportedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func readArchiveFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	limited := io.LimitReader(rc, maxFileBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxFileBytes)
	}
	return data, nil
}

func scanFile(filename string, content []byte, sum *Summary) FileReport {
	lines := strings.Split(string(content), "\n")
	// A trailing newline produces one empty pseudo-line.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	report := FileReport{
		Filename:  filename,
		LineCount: len(lines),
	}
	for i, line := range lines {
		if i < sampleLines {
			report.Sample = append(report.Sample, line)
		}
		trimmed := strings.TrimSpace(line)

		if len(report.Errors) < maxPerFileHits {
			if pattern, ok := matchError(trimmed); ok {
				report.Errors = append(report.Errors, Finding{
					LineNumber: i + 1,
					Content:    trimmed,
					Pattern:    pattern,
				})
			}
		}
		if len(report.Warnings) < maxPerFileHits {
			if pattern, ok := matchWarning(trimmed); ok {
				report.Warnings = append(report.Warnings, Finding{
					LineNumber: i + 1,
					Content:    trimmed,
					Pattern:    pattern,
				})
			}
		}
		if len(sum.Timestamps) < maxTimestamps {
			if ts := matchTimestamp(trimmed); ts != "" {
				sum.Timestamps = append(sum.Timestamps, ts)
			}
		}
	}
	return report
}

// EmbeddingText concatenates the matched error and warning lines; this is the
// text the embedding stage turns into the job's semantic fingerprint.
func (s Summary) EmbeddingText() string {
	var b strings.Builder
	for _, f := range s.Files {
		for _, e := range f.Errors {
			b.WriteString(e.Content)
			b.WriteByte(' ')
		}
		for _, w := range f.Warnings {
			b.WriteString(w.Content)
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// TotalErrors counts error findings across all files.
func (s Summary) TotalErrors() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Errors)
	}
	return n
}

// TotalWarnings counts warning findings across all files.
func (s Summary) TotalWarnings() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Warnings)
	}
	return n
}
