package ingest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oceanops/moorsync/internal/models"
)

const catalogFixture = `<html><body>
<table>
<tr><td><a href="f2.nc"><tt>IMOS_SOFS_20190315.nc</tt></a></td><tt>2019-03-15T06:30:00Z</tt></tr>
<tr><td><a href="f1.nc"><tt>IMOS_SOFS_20190314.nc</tt></a></td><tt>2019-03-14T06:30:00Z</tt></tr>
<tr><td><a href="catalog.html">parent directory</a></td><tt>--</tt></tr>
</table>
</body></html>`

func fixedYear(t *testing.T, c *SOFSClient) {
	t.Helper()
	c.now = func() time.Time { return time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC) }
}

func TestSOFSClient_Files(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2019_daily/catalog.html" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, catalogFixture)
	}))
	defer srv.Close()

	c := NewSOFSClient(srv.URL+"/", srv.URL+"/")
	fixedYear(t, c)

	files, err := c.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}

	// Sorted ascending by upload date, whatever the page order.
	if files[0].Name != "IMOS_SOFS_20190314.nc" {
		t.Errorf("files[0] = %q, want the earlier upload first", files[0].Name)
	}
	if files[1].Name != "IMOS_SOFS_20190315.nc" {
		t.Errorf("files[1] = %q, want IMOS_SOFS_20190315.nc", files[1].Name)
	}
	want := time.Date(2019, 3, 14, 6, 30, 0, 0, time.UTC)
	if !files[0].UploadedAt.Equal(want) {
		t.Errorf("files[0].UploadedAt = %v, want %v", files[0].UploadedAt, want)
	}
}

func TestNewSince(t *testing.T) {
	base := time.Date(2019, 3, 14, 6, 30, 0, 0, time.UTC)
	files := []models.CatalogFile{
		{Name: "a.nc", UploadedAt: base},
		{Name: "b.nc", UploadedAt: base.Add(24 * time.Hour)},
	}

	got := NewSince(files, base)
	if len(got) != 1 || got[0].Name != "b.nc" {
		t.Errorf("NewSince = %+v, want only the file after the checkpoint", got)
	}

	if got := NewSince(files, base.Add(-time.Hour)); len(got) != 2 {
		t.Errorf("NewSince before both = %d files, want 2", len(got))
	}
}

func TestSOFSClient_FetchFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2019_daily/IMOS_SOFS_20190315.nc" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("netcdf-bytes"))
	}))
	defer srv.Close()

	c := NewSOFSClient(srv.URL+"/", srv.URL+"/")
	fixedYear(t, c)

	body, err := c.FetchFile("IMOS_SOFS_20190315.nc")
	if err != nil {
		t.Fatalf("FetchFile: %v", err)
	}
	if string(body) != "netcdf-bytes" {
		t.Errorf("body = %q", body)
	}

	// Missing files fail permanently, without retrying into the timeout.
	if _, err := c.FetchFile("nope.nc"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
