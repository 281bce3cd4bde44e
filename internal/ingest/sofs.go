// Package ingest contains the adapters that bring external sensor data into
// memory: the SOFS real-time catalog client and the NDBC ASCII file parser.
// NetCDF decoding stays behind the SeriesDecoder interface; the reconciliation
// core only ever sees plain in-memory series.
package ingest

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html"

	"github.com/oceanops/moorsync/internal/metrics"
	"github.com/oceanops/moorsync/internal/models"
)

const (
	defaultCatalogBaseURL = "https://thredds.aodn.org.au/catalog/IMOS/ABOS/SOTS/Real-time/"
	defaultDataBaseURL    = "https://thredds.aodn.org.au/fileServer/IMOS/ABOS/SOTS/Real-time/"
)

var uploadDatePattern = regexp.MustCompile(`[0-9]+-[0-9]+-[0-9]+\w[0-9]+:[0-9]+:[0-9]+\w`)

// SeriesDecoder turns a fetched data file into a sensor series. The real-time
// SOFS feed serves NetCDF, whose decoding is an external concern; tests and
// alternative feeds supply their own implementations.
type SeriesDecoder interface {
	Decode(name string, data []byte) (*models.SensorSeries, error)
}

// SOFSClient lists and fetches files from the SOFS near-real-time catalog.
// The catalog is one HTML page per year listing NetCDF files and their upload
// timestamps.
type SOFSClient struct {
	catalogBase string
	dataBase    string
	client      *http.Client
	now         func() time.Time
}

func NewSOFSClient(catalogBase, dataBase string) *SOFSClient {
	if catalogBase == "" {
		catalogBase = defaultCatalogBaseURL
	}
	if dataBase == "" {
		dataBase = defaultDataBaseURL
	}
	return &SOFSClient{
		catalogBase: catalogBase,
		dataBase:    dataBase,
		client:      &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
	}
}

func (c *SOFSClient) catalogURL() string {
	return fmt.Sprintf("%s%d_daily/catalog.html", c.catalogBase, c.now().Year())
}

func (c *SOFSClient) dataURL(name string) string {
	return fmt.Sprintf("%s%d_daily/%s", c.dataBase, c.now().Year(), name)
}

// Files lists the current year's catalog entries, sorted by upload date.
func (c *SOFSClient) Files() ([]models.CatalogFile, error) {
	body, err := c.get(c.catalogURL(), "sofs_catalog")
	if err != nil {
		return nil, err
	}

	files, err := parseCatalog(body)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].UploadedAt.Before(files[j].UploadedAt)
	})
	return files, nil
}

// NewSince filters a catalog listing to files uploaded strictly after the
// checkpoint.
func NewSince(files []models.CatalogFile, since time.Time) []models.CatalogFile {
	var out []models.CatalogFile
	for _, f := range files {
		if f.UploadedAt.After(since) {
			out = append(out, f)
		}
	}
	return out
}

// FetchFile downloads one catalog file's raw bytes.
func (c *SOFSClient) FetchFile(name string) ([]byte, error) {
	return c.get(c.dataURL(name), "sofs_file")
}

func (c *SOFSClient) get(url, source string) ([]byte, error) {
	var body []byte
	start := time.Now()

	operation := func() error {
		resp, err := c.client.Get(url)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("get %s: %w", url, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("get %s: status %d", url, resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read %s: %w", url, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		metrics.FetchesTotal.WithLabelValues(source, "error").Inc()
		return nil, err
	}

	metrics.FetchesTotal.WithLabelValues(source, "ok").Inc()
	metrics.FetchLatency.WithLabelValues(source).Observe(time.Since(start).Seconds())
	return body, nil
}

// parseCatalog extracts NetCDF file names from anchor text and upload dates
// from the listing's timestamp cells, pairing them in document order.
func parseCatalog(body []byte) ([]models.CatalogFile, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	var names []string
	var dates []time.Time

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if txt := nodeText(n); strings.HasSuffix(txt, ".nc") {
					names = append(names, txt)
				}
			case "tt":
				if m := uploadDatePattern.FindString(nodeText(n)); m != "" {
					if t, err := time.Parse(time.RFC3339, m); err == nil {
						dates = append(dates, t)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	n := len(names)
	if len(dates) < n {
		n = len(dates)
	}
	files := make([]models.CatalogFile, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, models.CatalogFile{Name: names[i], UploadedAt: dates[i]})
	}
	return files, nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
