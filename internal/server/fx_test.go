package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/config"
	"github.com/JakeFAU/catalog-reconciler/internal/service"
)

func catalogServer(t *testing.T, ids ...string) *httptest.Server {
	t.Helper()
	var b strings.Builder
	b.WriteString("<ul>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<li class="search_result_img_box_inner"><a href="/work/=/product_id/%s.html">%s</a></li>`, id, id)
	}
	b.WriteString("</ul>")
	payload, err := json.Marshal(map[string]any{
		"search_result": b.String(),
		"page_info":     map[string]int{"count": len(ids), "first_indice": 1, "last_indice": len(ids)},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, searchURL string, baselineIDs ...string) config.Config {
	t.Helper()
	dir := t.TempDir()
	baselinePath := filepath.Join(dir, "baseline.json")
	data, err := json.Marshal(map[string][]string{"workIds": baselineIDs})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(baselinePath, data, 0o600))

	return config.Config{
		Catalog:    config.CatalogConfig{SearchURL: searchURL + "/fsr/ajax/=/keyword/test/", UserAgent: "reconciler-test"},
		HTTP:       config.HTTPConfig{TimeoutSeconds: 5, PreviewBytes: 2048},
		Collection: config.CollectionConfig{MaxPages: 5},
		Validation: config.ValidationConfig{MinCoveragePct: 80, MaxExtraPct: 20},
		Baseline:   config.BaselineConfig{Source: baselinePath},
		Detection:  config.DetectionConfig{MaxPages: 5, BatchSize: 2, LockTTLSeconds: 60},
		Storage: config.StorageConfig{
			Backend:      config.BackendLocal,
			Restrictions: config.BackendMemory,
			BaseDir:      filepath.Join(dir, "snapshots"),
			Prefix:       "snapshots",
		},
		Server: config.ServerConfig{Port: 8080},
	}
}

func TestBuildCollectValidatesAndSnapshots(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "RJ000001", "RJ000002", "RJ000003")
	cfg := testConfig(t, srv.URL, "RJ000001", "RJ000002", "RJ000003")

	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	resp, err := app.Service().Collect(context.Background(), service.CollectRequest{Snapshot: true})
	require.NoError(t, err)
	assert.Equal(t, []catalog.Identifier{"RJ000001", "RJ000002", "RJ000003"}, resp.Result.Identifiers)
	assert.Equal(t, catalog.StopLastPage, resp.Result.StopReason)
	assert.Equal(t, 1, resp.Result.PagesProcessed)
	require.NotNil(t, resp.Result.Validation)
	assert.True(t, resp.Result.Validation.IsValid)
	assert.InDelta(t, 100.0, resp.Result.Validation.CoveragePercentage, 1e-9)

	require.True(t, strings.HasPrefix(resp.SnapshotURI, "file://"), resp.SnapshotURI)
	written, err := os.ReadFile(strings.TrimPrefix(resp.SnapshotURI, "file://"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "RJ000003")
}

func TestBuildDetectRecordsMissingIdentifiers(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "RJ000001", "RJ000002")
	cfg := testConfig(t, srv.URL, "RJ000001", "RJ000002", "RJ000003", "RJ000004")

	app, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	report, err := app.Service().Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.BaselineCount)
	assert.Equal(t, 2, report.CurrentCount)
	assert.Equal(t, 2, report.CandidateCount)
	assert.Equal(t, 2, report.NewlyDetected)
	assert.Equal(t, 2, report.Recorded)

	again, err := app.Service().Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.NewlyDetected)
	assert.Equal(t, 2, again.AlreadyKnown)
}

func TestBuildDetectSkipsWhenPageFails(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&b, `<li class="search_result_img_box_inner"><a href="/work/=/product_id/RJ%06d.html">x</a></li>`, i)
	}
	payload, err := json.Marshal(map[string]any{
		"search_result": "<ul>" + b.String() + "</ul>",
		"page_info":     map[string]int{"count": 60, "first_indice": 1, "last_indice": 30},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/page/2") {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	app, err := BuildWithLogger(context.Background(), testConfig(t, srv.URL, "RJ000001", "RJ999999"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	report, err := app.Service().Detect(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, string(catalog.StopFetchError), report.SkipReason)
	assert.Equal(t, 30, report.CurrentCount)
	assert.Equal(t, 1, report.CandidateCount)
	assert.Equal(t, 0, report.Recorded)
	assert.Equal(t, 1, report.Collection.PagesProcessed)
}

func TestBuildServesProbes(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "RJ000001")
	app, err := BuildWithLogger(context.Background(), testConfig(t, srv.URL), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestBuildRejectsBadBaselineURI(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, "RJ000001")
	cfg := testConfig(t, srv.URL)
	cfg.Baseline.Source = "gs://bucket-only"

	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "baseline.source")
}
