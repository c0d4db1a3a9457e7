package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/pagination"
	"github.com/JakeFAU/catalog-reconciler/internal/restriction"
	"github.com/JakeFAU/catalog-reconciler/internal/service"
)

type stubCollector struct {
	result catalog.CollectionResult
	opts   pagination.Options
}

func (s *stubCollector) Collect(_ context.Context, opts pagination.Options) (catalog.CollectionResult, error) {
	s.opts = opts
	return s.result, nil
}

type stubDetector struct {
	report restriction.DetectionReport
	err    error
}

func (s *stubDetector) DetectAndRecord(context.Context, []catalog.Identifier) (restriction.DetectionReport, error) {
	return s.report, s.err
}

type fakeApp struct {
	svc    *service.Service
	ran    bool
	closed bool
}

func (f *fakeApp) Service() *service.Service { return f.svc }
func (f *fakeApp) Logger() *zap.Logger       { return zap.NewNop() }
func (f *fakeApp) Close() error {
	f.closed = true
	return nil
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

// withApp swaps the application factory for the duration of a test.
func withApp(t *testing.T, app App, buildErr error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string) (App, error) {
		if buildErr != nil {
			return nil, buildErr
		}
		return app, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCollectPrintsResult(t *testing.T) {
	collector := &stubCollector{result: catalog.CollectionResult{
		Identifiers:    []catalog.Identifier{"RJ000001", "RJ000002"},
		PagesProcessed: 1,
		StopReason:     catalog.StopLastPage,
	}}
	app := &fakeApp{svc: service.New(service.Deps{Collector: collector}, service.Options{MaxPages: 10})}
	withApp(t, app, nil)

	out, err := execute("collect", "--max-pages", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, collector.opts.MaxPages)
	assert.True(t, app.closed)

	var resp service.CollectResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []catalog.Identifier{"RJ000001", "RJ000002"}, resp.Result.Identifiers)
}

func TestCollectFailsWhenNothingCollected(t *testing.T) {
	collector := &stubCollector{result: catalog.CollectionResult{
		Identifiers: []catalog.Identifier{},
		StopReason:  catalog.StopFetchError,
		FetchError:  "http status 503",
	}}
	withApp(t, &fakeApp{svc: service.New(service.Deps{Collector: collector}, service.Options{MaxPages: 10})}, nil)

	out, err := execute("collect")
	require.ErrorIs(t, err, service.ErrNothingCollected)
	assert.Contains(t, out, "fetch_error")
}

func TestDetectPrintsReport(t *testing.T) {
	detector := &stubDetector{report: restriction.DetectionReport{RunID: "run-1", Recorded: 3}}
	withApp(t, &fakeApp{svc: service.New(service.Deps{Detector: detector}, service.Options{})}, nil)

	out, err := execute("detect")
	require.NoError(t, err)
	assert.Contains(t, out, `"run-1"`)
}

func TestDetectSkippedRunSucceeds(t *testing.T) {
	detector := &stubDetector{report: restriction.DetectionReport{
		RunID:         "run-2",
		BaselineCount: 2,
		CurrentCount:  30,
		Skipped:       true,
		SkipReason:    string(catalog.StopFetchError),
	}}
	withApp(t, &fakeApp{svc: service.New(service.Deps{Detector: detector}, service.Options{})}, nil)

	out, err := execute("detect")
	require.NoError(t, err)
	assert.Contains(t, out, `"skipped": true`)
}

func TestDetectFailsWhenNothingCollected(t *testing.T) {
	detector := &stubDetector{report: restriction.DetectionReport{
		RunID:         "run-3",
		BaselineCount: 2,
		Skipped:       true,
		SkipReason:    string(catalog.StopFetchError),
	}}
	withApp(t, &fakeApp{svc: service.New(service.Deps{Detector: detector}, service.Options{})}, nil)

	out, err := execute("detect")
	require.ErrorIs(t, err, service.ErrNothingCollected)
	assert.Contains(t, out, "run-3")
}

func TestDetectReturnsError(t *testing.T) {
	detector := &stubDetector{
		report: restriction.DetectionReport{RunID: "run-4"},
		err:    errors.New("load known restrictions: connection refused"),
	}
	withApp(t, &fakeApp{svc: service.New(service.Deps{Detector: detector}, service.Options{})}, nil)

	out, err := execute("detect")
	require.ErrorContains(t, err, "connection refused")
	assert.Contains(t, out, "run-4")
}

func TestServeRunsApp(t *testing.T) {
	app := &fakeApp{svc: service.New(service.Deps{}, service.Options{})}
	withApp(t, app, nil)

	_, err := execute("serve")
	require.NoError(t, err)
	assert.True(t, app.ran)
}

func TestBuildFailureIsReported(t *testing.T) {
	withApp(t, nil, errors.New("catalog.search_url is required"))

	_, err := execute("collect")
	require.ErrorContains(t, err, "failed to initialize application services")
}
