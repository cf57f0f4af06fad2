package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/freight/internal/core/rates"
	"github.com/JonMunkholm/freight/internal/sheet"
	"github.com/JonMunkholm/freight/internal/store"
)

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func workbook(t *testing.T, rows []rates.RawRow) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, sheet.WriteRows(&buf, "", rows))
	return buf.Bytes()
}

// defaultFile writes the sample workbook to a temp dir and returns its path.
func defaultFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "freight_data.xlsx")
	require.NoError(t, os.WriteFile(path, workbook(t, sheet.SampleRows()), 0o644))
	return path
}

func newTestService(t *testing.T, cache store.Cache, defaultPath string) *Service {
	t.Helper()
	return NewService(cache, Config{
		DefaultFile: defaultPath,
		MaxFileSize: 1 << 20,
		MaxWait:     time.Second,
	})
}

// blockingOpen makes svc's default file open wait until release is closed.
// started is closed by the first open.
func blockingOpen(svc *Service) (started <-chan struct{}, release chan<- struct{}) {
	s := make(chan struct{})
	r := make(chan struct{})
	var once sync.Once
	svc.openFile = func(name string) (io.ReadCloser, error) {
		once.Do(func() { close(s) })
		<-r
		return os.Open(name)
	}
	return s, r
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Save(ctx context.Context, key string, s store.Snapshot) error {
	return m.Called(ctx, key, s).Error(0)
}

func (m *mockCache) Load(ctx context.Context, key string) (store.Snapshot, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(store.Snapshot), args.Error(1)
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockCache) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// ----------------------------------------------------------------------------
// Init
// ----------------------------------------------------------------------------

func TestInit_LoadsDefaultOnCacheMiss(t *testing.T) {
	svc := newTestService(t, store.NewMemoryCache(0), defaultFile(t))
	require.NoError(t, svc.Init(context.Background()))

	st := svc.Status()
	assert.True(t, st.Loaded)
	assert.False(t, st.CustomData)
	assert.Equal(t, store.SourceDefault, st.Source)
	assert.Equal(t, 9, st.Rules)
	assert.Equal(t, rates.ShapeWide, st.Shape)
	assert.Equal(t, msgDefaultLoaded, st.Message)
}

func TestInit_NoDefaultFile(t *testing.T) {
	svc := newTestService(t, store.NewMemoryCache(0), filepath.Join(t.TempDir(), "missing.xlsx"))
	require.NoError(t, svc.Init(context.Background()))

	st := svc.Status()
	assert.False(t, st.Loaded)
	assert.Equal(t, msgNoDefault, st.Message)

	_, err := svc.Quote(context.Background(), rates.Query{Origin: "北京", Destination: "上海", Weight: 1})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestInit_RestoresFromCache(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryCache(0)

	set, err := rates.Normalize(sheet.TemplateRows())
	require.NoError(t, err)
	savedAt := time.UnixMilli(1700000000000)
	require.NoError(t, cache.Save(ctx, DefaultCacheKey, store.NewSnapshot(&set, savedAt)))

	svc := newTestService(t, cache, defaultFile(t))
	require.NoError(t, svc.Init(ctx))

	st := svc.Status()
	assert.Equal(t, store.SourceCache, st.Source)
	assert.True(t, st.CustomData)
	assert.Equal(t, 3, st.Rules)
	assert.Equal(t, msgCacheRestored, st.Message)
	require.NotNil(t, st.LoadedAt)
	assert.True(t, savedAt.Equal(*st.LoadedAt))

	q, err := svc.Quote(ctx, rates.Query{Origin: "北京", Destination: "上海", Weight: 10})
	require.NoError(t, err)
	assert.Equal(t, 100.0, q.Price)
}

func TestInit_DiscardsCorruptCache(t *testing.T) {
	cache := &mockCache{}
	cache.On("Load", mock.Anything, DefaultCacheKey).Return(store.Snapshot{}, store.ErrCorruptSnapshot)
	cache.On("Delete", mock.Anything, DefaultCacheKey).Return(nil)

	svc := newTestService(t, cache, defaultFile(t))
	require.NoError(t, svc.Init(context.Background()))

	cache.AssertExpectations(t)
	assert.Equal(t, store.SourceDefault, svc.Status().Source)
}

func TestInit_CacheUnavailable(t *testing.T) {
	cache := &mockCache{}
	cache.On("Load", mock.Anything, DefaultCacheKey).Return(store.Snapshot{}, errors.New("dial tcp: connection refused"))

	svc := newTestService(t, cache, defaultFile(t))
	require.NoError(t, svc.Init(context.Background()))

	cache.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	assert.Equal(t, store.SourceDefault, svc.Status().Source)
}

func TestInit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(t, store.NewMemoryCache(0), defaultFile(t))
	assert.ErrorIs(t, svc.Init(ctx), context.Canceled)
}

// ----------------------------------------------------------------------------
// LoadUpload
// ----------------------------------------------------------------------------

func TestLoadUpload_ReplacesAndCaches(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryCache(0)
	svc := newTestService(t, cache, defaultFile(t))
	require.NoError(t, svc.Init(ctx))

	res, err := svc.LoadUpload(ctx, "rates.xlsx", bytes.NewReader(workbook(t, sheet.TemplateRows())))
	require.NoError(t, err)

	assert.NotEmpty(t, res.UploadID)
	assert.Equal(t, store.SourceUpload, res.Source)
	assert.Equal(t, rates.ShapeLong, res.Shape)
	assert.Equal(t, 3, res.Rules)
	assert.True(t, res.Cached)
	assert.Equal(t, msgUploadCached, res.Message)

	st := svc.Status()
	assert.True(t, st.CustomData)
	assert.Equal(t, msgUploadCached, st.Message)

	q, err := svc.Quote(ctx, rates.Query{Origin: "深圳", Destination: "成都", Weight: 50})
	require.NoError(t, err)
	assert.Equal(t, 500.0, q.Price)
	assert.Equal(t, "2", q.Rule.Key)

	snap, err := cache.Load(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.Len(t, snap.Rules, 3)
}

func TestLoadUpload_CSV(t *testing.T) {
	svc := newTestService(t, store.NewMemoryCache(0), "")

	csv := "始发地,目的地,重量,价格\n北京,上海,5,42.5\n"
	res, err := svc.LoadUpload(context.Background(), "rates.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rules)

	q, err := svc.Quote(context.Background(), rates.Query{Origin: " 北京 ", Destination: "上海", Weight: 5})
	require.NoError(t, err)
	assert.Equal(t, 42.5, q.Price)
}

func TestLoadUpload_FailureKeepsPreviousSet(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		body     []byte
		wantErr  error
	}{
		{"empty body", "rates.xlsx", nil, rates.ErrEmptyInput},
		{"header only", "rates.csv", []byte("始发地,目的地,1kg\n"), rates.ErrEmptyInput},
		{"not a workbook", "rates.xlsx", []byte("plain text"), sheet.ErrInvalidWorkbook},
		{"too large", "rates.csv", bytes.Repeat([]byte("a"), 2<<20), ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, store.NewMemoryCache(0), defaultFile(t))
			require.NoError(t, svc.Init(ctx))
			before := svc.Status()

			_, err := svc.LoadUpload(ctx, tt.filename, bytes.NewReader(tt.body))
			require.ErrorIs(t, err, tt.wantErr)

			after := svc.Status()
			assert.Equal(t, before.Source, after.Source)
			assert.Equal(t, before.Rules, after.Rules)
			assert.Equal(t, before.Message, after.Message)

			hist := svc.History()
			require.NotEmpty(t, hist)
			assert.Equal(t, ActionUpload, hist[0].Action)
			assert.Equal(t, MapError(tt.wantErr).Code, hist[0].Error)
		})
	}
}

func TestLoadUpload_NilReader(t *testing.T) {
	svc := newTestService(t, store.NewMemoryCache(0), "")
	_, err := svc.LoadUpload(context.Background(), "rates.xlsx", nil)
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestLoadUpload_CacheFailureIsWarning(t *testing.T) {
	cache := &mockCache{}
	cache.On("Save", mock.Anything, DefaultCacheKey, mock.AnythingOfType("store.Snapshot")).
		Return(store.ErrSnapshotTooLarge)

	svc := newTestService(t, cache, "")
	res, err := svc.LoadUpload(context.Background(), "rates.xlsx", bytes.NewReader(workbook(t, sheet.TemplateRows())))
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, msgTooLargeToCache.Message, res.Warning)
	assert.Equal(t, msgUploadOnly, res.Message)
	assert.Equal(t, 3, svc.Status().Rules)
	cache.AssertExpectations(t)
}

func TestLoadUpload_ConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemoryCache(0), defaultFile(t))
	require.NoError(t, svc.Init(ctx))

	upload := workbook(t, sheet.TemplateRows())
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				// Both data sets price 北京→上海; each answer must come from one of them.
				q, err := svc.Quote(ctx, rates.Query{Origin: "北京", Destination: "上海", Weight: 1})
				if err != nil {
					assert.ErrorIs(t, err, rates.ErrNoMatch)
					continue
				}
				assert.Contains(t, []float64{12, 100}, q.Price)
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_, err := svc.LoadUpload(ctx, "rates.xlsx", bytes.NewReader(upload))
		require.NoError(t, err)
		_, err = svc.LoadDefault(ctx)
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestLoadUpload_NotOverwrittenBySlowDefault(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryCache(0)
	svc := newTestService(t, cache, defaultFile(t))
	started, release := blockingOpen(svc)
	upload := workbook(t, sheet.TemplateRows())

	defaultDone := make(chan error, 1)
	go func() {
		_, err := svc.LoadDefault(ctx)
		defaultDone <- err
	}()
	<-started

	uploadDone := make(chan error, 1)
	go func() {
		_, err := svc.LoadUpload(ctx, "rates.xlsx", bytes.NewReader(upload))
		uploadDone <- err
	}()

	// Let the upload queue behind the default load before it finishes.
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-defaultDone)
	require.NoError(t, <-uploadDone)

	st := svc.Status()
	assert.Equal(t, store.SourceUpload, st.Source)
	assert.Equal(t, 3, st.Rules)
	assert.Equal(t, msgUploadCached, st.Message)

	q, err := svc.Quote(ctx, rates.Query{Origin: "深圳", Destination: "成都", Weight: 50})
	require.NoError(t, err)
	assert.Equal(t, 500.0, q.Price)

	snap, err := cache.Load(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.Len(t, snap.Rules, 3)
}

func TestLoadDefault_CancelledCallerLeavesSharedLoad(t *testing.T) {
	svc := newTestService(t, store.NewMemoryCache(0), defaultFile(t))
	started, release := blockingOpen(svc)

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.LoadDefault(first)
		firstDone <- err
	}()
	<-started

	secondDone := make(chan error, 1)
	go func() {
		res, err := svc.LoadDefault(context.Background())
		if err == nil && res.Source != store.SourceDefault {
			err = errors.New("unexpected source " + string(res.Source))
		}
		secondDone <- err
	}()

	cancel()
	select {
	case err := <-firstDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting on the load")
	}

	close(release)
	require.NoError(t, <-secondDone)
	assert.Equal(t, store.SourceDefault, svc.Status().Source)
	assert.Equal(t, 9, svc.Status().Rules)
}

// ----------------------------------------------------------------------------
// Reset, Quote, Options, Preview
// ----------------------------------------------------------------------------

func TestReset_ReturnsToDefault(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryCache(0)
	svc := newTestService(t, cache, defaultFile(t))
	require.NoError(t, svc.Init(ctx))

	_, err := svc.LoadUpload(ctx, "rates.xlsx", bytes.NewReader(workbook(t, sheet.TemplateRows())))
	require.NoError(t, err)

	res, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.SourceDefault, res.Source)
	assert.Equal(t, store.SourceDefault, svc.Status().Source)
	assert.Equal(t, msgDefaultLoaded, svc.Message())

	_, err = cache.Load(ctx, DefaultCacheKey)
	assert.ErrorIs(t, err, store.ErrCacheMiss)

	hist := svc.History()
	require.GreaterOrEqual(t, len(hist), 3)
	assert.Equal(t, ActionDefault, hist[0].Action)
	assert.Equal(t, ActionReset, hist[1].Action)
}

func TestReset_KeepsUploadUntilDefaultIsReady(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemoryCache(0), defaultFile(t))

	_, err := svc.LoadUpload(ctx, "rates.xlsx", bytes.NewReader(workbook(t, sheet.TemplateRows())))
	require.NoError(t, err)

	started, release := blockingOpen(svc)
	done := make(chan error, 1)
	go func() {
		_, err := svc.Reset(ctx)
		done <- err
	}()
	<-started

	// The default is still being read; the upload keeps answering.
	q, err := svc.Quote(ctx, rates.Query{Origin: "北京", Destination: "上海", Weight: 1})
	require.NoError(t, err)
	assert.Equal(t, 100.0, q.Price)
	assert.Equal(t, store.SourceUpload, svc.Status().Source)

	close(release)
	require.NoError(t, <-done)

	q, err = svc.Quote(ctx, rates.Query{Origin: "北京", Destination: "上海", Weight: 1})
	require.NoError(t, err)
	assert.Equal(t, 12.0, q.Price)
	assert.Equal(t, store.SourceDefault, svc.Status().Source)
}

func TestReset_WithoutDefault(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemoryCache(0), "")

	_, err := svc.LoadUpload(ctx, "rates.xlsx", bytes.NewReader(workbook(t, sheet.TemplateRows())))
	require.NoError(t, err)

	res, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.SourceNone, res.Source)
	assert.Equal(t, msgNoDefault, res.Message)
	assert.False(t, svc.Status().Loaded)
}

func TestReset_CacheError(t *testing.T) {
	cache := &mockCache{}
	cache.On("Delete", mock.Anything, DefaultCacheKey).Return(errors.New("connection reset by peer"))

	svc := newTestService(t, cache, "")
	_, err := svc.Reset(context.Background())
	require.Error(t, err)
	assert.Equal(t, "DB005", MapError(err).Code)
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemoryCache(0), defaultFile(t))
	require.NoError(t, svc.Init(ctx))

	tests := []struct {
		name    string
		query   rates.Query
		want    float64
		wantErr error
	}{
		{"exact weight", rates.Query{Origin: "新疆圆通仓", Destination: "新疆维吾尔自治区", Weight: 4}, 4.72, nil},
		{"second route", rates.Query{Origin: "北京", Destination: "上海", Weight: 3}, 18, nil},
		{"weight between columns", rates.Query{Origin: "北京", Destination: "上海", Weight: 2.5}, 0, rates.ErrNoMatch},
		{"unknown route", rates.Query{Origin: "上海", Destination: "北京", Weight: 1}, 0, rates.ErrNoMatch},
		{"blank origin", rates.Query{Destination: "上海", Weight: 1}, 0, ErrInvalidQuery},
		{"negative weight", rates.Query{Origin: "北京", Destination: "上海", Weight: -1}, 0, ErrInvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := svc.Quote(ctx, tt.query)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Price)
			assert.Equal(t, tt.want, q.Rule.Price)
		})
	}
}

func TestOptionsPreviewRules(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, store.NewMemoryCache(0), defaultFile(t))

	empty := svc.Options()
	assert.Empty(t, empty.Origins)
	assert.NotNil(t, empty.Weights)
	assert.Empty(t, svc.Preview(0).Rows)
	assert.Empty(t, svc.Rules(0))

	require.NoError(t, svc.Init(ctx))

	opts := svc.Options()
	assert.Equal(t, []string{"北京", "新疆圆通仓"}, opts.Origins)
	assert.Equal(t, []string{"上海", "新疆维吾尔自治区"}, opts.Destinations)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 10}, opts.Weights)

	p := svc.Preview(0)
	assert.Len(t, p.Rows, DefaultPreviewRows)
	assert.Equal(t, 9, p.Total)
	assert.Equal(t, []string{"始发地", "目的地", "1kg", "2kg", "3kg", "4kg", "5kg", "10kg"}, p.Columns)

	assert.Len(t, svc.Preview(100).Rows, 9)
	assert.Len(t, svc.Rules(2), 2)
	assert.Len(t, svc.Rules(0), 9)
}

// ----------------------------------------------------------------------------
// Pruning and history
// ----------------------------------------------------------------------------

func TestPruneCache(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryCache(0)
	set, err := rates.Normalize(sheet.TemplateRows())
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Save(ctx, "old", store.NewSnapshot(&set, now.Add(-48*time.Hour))))
	require.NoError(t, cache.Save(ctx, "fresh", store.NewSnapshot(&set, now.Add(-time.Hour))))

	svc := NewService(cache, Config{CacheMaxAge: 24 * time.Hour})
	svc.now = func() time.Time { return now }

	assert.EqualValues(t, 1, svc.PruneCache(ctx))

	_, err = cache.Load(ctx, "old")
	assert.ErrorIs(t, err, store.ErrCacheMiss)
	_, err = cache.Load(ctx, "fresh")
	assert.NoError(t, err)
}

func TestStartCachePruner_StopsOnCancel(t *testing.T) {
	cache := &mockCache{}
	cache.On("PruneOlderThan", mock.Anything, mock.Anything).Return(int64(0), nil)

	svc := NewService(cache, Config{CacheMaxAge: time.Hour, PruneInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.StartCachePruner(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
	assert.GreaterOrEqual(t, len(cache.Calls), 2)
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(HistoryEntry{Action: ActionUpload, Rules: i})
	}

	list := h.List()
	require.Len(t, list, 3)
	assert.Equal(t, 4, list[0].Rules)
	assert.Equal(t, 2, list[2].Rules)
}

func TestHistory_RecordsClientIP(t *testing.T) {
	svc := newTestService(t, store.NewMemoryCache(0), "")
	ctx := ContextWithClientIP(context.Background(), "203.0.113.7")

	_, err := svc.LoadUpload(ctx, "rates.xlsx", bytes.NewReader(workbook(t, sheet.TemplateRows())))
	require.NoError(t, err)

	hist := svc.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "203.0.113.7", hist[0].ClientIP)
	assert.Equal(t, "rates.xlsx", hist[0].FileName)
	assert.True(t, hist[0].Cached)
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery(rates.Query{Origin: "a", Destination: "b", Weight: 0}))

	err := ValidateQuery(rates.Query{Origin: " ", Destination: "", Weight: -2})
	require.ErrorIs(t, err, ErrInvalidQuery)
	for _, field := range []string{"origin", "destination", "weight"} {
		assert.Contains(t, err.Error(), field)
	}
}
