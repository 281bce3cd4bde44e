package ingest

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/oceanops/moorsync/internal/models"
)

const ndbcFTPTimeout = 30 * time.Second

var fieldSeparator = regexp.MustCompile(`[\s\t]+`)

// ParseNDBCFile reads an NDBC ASCII temperature or salinity file into a
// sensor series. Gzip-compressed files (.gz) are decompressed transparently.
// Station and parameter names come from the filename.
func ParseNDBCFile(path string) (*models.SensorSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	_, station := MetadataFromFilename(path)
	return ParseNDBC(r, station)
}

// ParseNDBC parses NDBC ASCII data: a header line beginning "YYYY" naming the
// columns after the date/time pair, then one row per sample starting with a
// YYYYMMDD date. Unparseable numeric fields become NaN. Duplicate timestamps
// collapse to the first occurrence.
func ParseNDBC(r io.Reader, station string) (*models.SensorSeries, error) {
	series := &models.SensorSeries{
		Station: station,
		Columns: make(map[string][]float64),
	}

	var fields []string
	seen := make(map[int64]bool)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimLeft(scanner.Text(), " \t")
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "YYYY"):
			if fields != nil {
				continue // keep the first header
			}
			parts := splitFields(line)
			if len(parts) < 3 {
				return nil, fmt.Errorf("line %d: header has no data columns", lineNum)
			}
			for _, p := range parts[2:] {
				fields = append(fields, strings.ToLower(p))
			}

		case strings.HasPrefix(line, "1"), strings.HasPrefix(line, "2"):
			parts := splitFields(line)
			if len(parts) < 2 {
				return nil, fmt.Errorf("line %d: missing date/time pair", lineNum)
			}
			ts, err := parseNDBCTimestamp(parts[0], parts[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			if fields == nil {
				return nil, fmt.Errorf("line %d: data before header", lineNum)
			}
			if len(parts)-2 != len(fields) {
				return nil, fmt.Errorf("line %d: %d values for %d columns", lineNum, len(parts)-2, len(fields))
			}
			if seen[ts.UnixNano()] {
				continue
			}
			seen[ts.UnixNano()] = true

			series.Times = append(series.Times, ts)
			for i, name := range fields {
				v, err := strconv.ParseFloat(parts[2+i], 64)
				if err != nil {
					v = math.NaN()
				}
				series.Columns[name] = append(series.Columns[name], v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return series, nil
}

func splitFields(line string) []string {
	var out []string
	for _, p := range fieldSeparator.Split(line, -1) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseNDBCTimestamp parses the YYYYMMDD HHMM[SS] date/time pair.
func parseNDBCTimestamp(date, clock string) (time.Time, error) {
	if len(date) != 8 {
		return time.Time{}, fmt.Errorf("bad date field %q", date)
	}
	switch len(clock) {
	case 4:
		return time.Parse("20060102 1504", date+" "+clock)
	case 6:
		return time.Parse("20060102 150405", date+" "+clock)
	default:
		return time.Time{}, fmt.Errorf("bad time field %q", clock)
	}
}

// MetadataFromFilename extracts the parameter and station names from an NDBC
// file name such as sssSOFS_20190315.txt.gz: the first three characters of
// the leading token are the parameter, the rest the station.
func MetadataFromFilename(path string) (parameter, station string) {
	name := filepath.Base(path)
	name = strings.SplitN(name, "_", 2)[0]
	if len(name) < 3 {
		return strings.ToLower(name), ""
	}
	return strings.ToLower(name[:3]), name[3:]
}

// FetchNDBCFile retrieves one station file over anonymous FTP.
func FetchNDBCFile(host, path string) ([]byte, error) {
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ndbcFTPTimeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr %s: %w", path, err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}
