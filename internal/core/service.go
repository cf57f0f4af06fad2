package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/freight/internal/core/rates"
	"github.com/JonMunkholm/freight/internal/logging"
	"github.com/JonMunkholm/freight/internal/sheet"
	"github.com/JonMunkholm/freight/internal/store"
)

var (
	// ErrNoData is returned by Quote when no rule set is loaded.
	ErrNoData = errors.New("no rate data loaded")

	// ErrInvalidQuery is returned for a quote with a blank route or a bad weight.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrFileTooLarge is returned when an upload exceeds Config.MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoFile is returned when an upload carries no file.
	ErrNoFile = errors.New("no file provided")
)

// Service owns the current rule set and every operation that reads or
// replaces it. Reads are lock-free; loads are serialized.
type Service struct {
	cfg     Config
	holder  store.Holder
	cache   store.Cache
	limiter *UploadLimiter
	history *History

	// loadMu serializes every load from open through replace.
	loadMu   sync.Mutex
	loads    singleflight.Group
	now      func() time.Time
	openFile func(name string) (io.ReadCloser, error)

	msgMu   sync.RWMutex
	message string
}

// NewService creates a Service backed by cache. Nothing is loaded until
// Init or one of the Load methods runs.
func NewService(cache store.Cache, cfg Config) *Service {
	if cfg.CacheKey == "" {
		cfg.CacheKey = DefaultCacheKey
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	return &Service{
		cfg:      cfg,
		cache:    cache,
		limiter:  NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		history:  NewHistory(cfg.HistorySize),
		now:      time.Now,
		openFile: osOpen,
		message:  msgNotLoaded,
	}
}

func osOpen(name string) (io.ReadCloser, error) { return os.Open(name) }

// Init restores the last upload from the cache, falling back to the
// default file. A corrupt cache entry is deleted. A missing or unreadable
// default file leaves the service empty; only context cancellation is
// returned as an error.
func (s *Service) Init(ctx context.Context) error {
	snap, err := s.cache.Load(ctx, s.cfg.CacheKey)
	switch {
	case err == nil:
		set := snap.RuleSet()
		s.loadMu.Lock()
		s.holder.Replace(set, store.SourceCache, snap.SavedAt())
		s.setMessage(msgCacheRestored)
		s.loadMu.Unlock()

		s.history.Add(HistoryEntry{Action: ActionRestore, Rules: set.Len(), At: s.now()})
		slog.Info("rate data restored from cache",
			"key", s.cfg.CacheKey,
			"rules", set.Len(),
			"saved_at", snap.SavedAt(),
		)
		return nil

	case errors.Is(err, store.ErrCorruptSnapshot):
		slog.Warn("cached rate data is corrupt, discarding", "key", s.cfg.CacheKey, "error", err)
		if delErr := s.cache.Delete(ctx, s.cfg.CacheKey); delErr != nil {
			slog.Error("delete corrupt cache entry failed", "key", s.cfg.CacheKey, "error", delErr)
		}

	case errors.Is(err, store.ErrCacheMiss):

	default:
		slog.Warn("cache unavailable, loading default data", "error", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.LoadDefault(ctx); err != nil {
		slog.Warn("default rate data not loaded", "file", s.cfg.DefaultFile, "error", err)
	}
	return ctx.Err()
}

// LoadDefault replaces the current rule set with the default file.
// Concurrent calls share one load, which runs detached from the caller's
// cancellation; a caller whose ctx ends stops waiting but the load goes on.
func (s *Service) LoadDefault(ctx context.Context) (LoadResult, error) {
	ch := s.loads.DoChan("default", func() (any, error) {
		return s.loadDefault(context.WithoutCancel(ctx))
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return LoadResult{}, r.Err
		}
		return r.Val.(LoadResult), nil
	case <-ctx.Done():
		return LoadResult{}, ctx.Err()
	}
}

func (s *Service) loadDefault(ctx context.Context) (LoadResult, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	result, err := s.swapDefault(ctx)
	if err != nil {
		s.noDefault()
		return LoadResult{}, err
	}
	return result, nil
}

// swapDefault reads the default file and makes it the current rule set.
// The caller holds loadMu. On error nothing is replaced.
func (s *Service) swapDefault(ctx context.Context) (LoadResult, error) {
	if s.cfg.DefaultFile == "" {
		return LoadResult{}, fmt.Errorf("load default: %w", os.ErrNotExist)
	}

	f, err := s.openFile(s.cfg.DefaultFile)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load default: %w", err)
	}
	defer f.Close()

	rows, err := sheet.Decode(f, s.cfg.DefaultFile)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load default %s: %w", s.cfg.DefaultFile, err)
	}

	set, issues, err := rates.NormalizeWithIssues(rows)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load default %s: %w", s.cfg.DefaultFile, err)
	}

	now := s.now()
	s.holder.Replace(&set, store.SourceDefault, now)
	s.setMessage(msgDefaultLoaded)

	result := LoadResult{
		UploadID: uuid.New().String(),
		FileName: s.cfg.DefaultFile,
		Source:   store.SourceDefault,
		Shape:    set.Shape,
		Rules:    set.Len(),
		Skipped:  len(issues),
		Message:  msgDefaultLoaded,
	}
	s.history.Add(HistoryEntry{
		UploadID: result.UploadID,
		Action:   ActionDefault,
		FileName: result.FileName,
		Rules:    result.Rules,
		Skipped:  result.Skipped,
		ClientIP: ClientIPFromContext(ctx),
		At:       now,
	})

	logging.FromContext(ctx).Info("default rate data loaded",
		"file", s.cfg.DefaultFile,
		"shape", set.Shape,
		"rules", set.Len(),
		"skipped", len(issues),
	)
	return result, nil
}

// noDefault sets the status message when nothing else is loaded.
func (s *Service) noDefault() {
	if s.holder.Current() == nil {
		s.setMessage(msgNoDefault)
	}
}

// LoadUpload decodes and normalizes an uploaded workbook and, on success,
// makes it the current rule set and saves it to the cache. A failed cache
// save is reported in the result, not as an error. On any error the
// previous rule set stays in place.
func (s *Service) LoadUpload(ctx context.Context, filename string, r io.Reader) (LoadResult, error) {
	if r == nil {
		return LoadResult{}, ErrNoFile
	}

	uploadID := uuid.New().String()
	ctx = logging.WithUploadID(ctx, uploadID)
	log := logging.WithFields(ctx, "file", filename, "client_ip", ClientIPFromContext(ctx), "user_agent", UserAgentFromContext(ctx))

	if err := s.limiter.Acquire(ctx); err != nil {
		log.Warn("upload rejected", "error", err)
		return LoadResult{}, err
	}
	defer s.limiter.Release()

	start := time.Now()
	log.Info("upload started")

	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxFileSize+1))
	if err != nil {
		return LoadResult{}, s.uploadFailed(ctx, uploadID, filename, fmt.Errorf("read upload: %w", err))
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return LoadResult{}, s.uploadFailed(ctx, uploadID, filename,
			fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.cfg.MaxFileSize))
	}
	if len(data) == 0 {
		return LoadResult{}, s.uploadFailed(ctx, uploadID, filename, rates.ErrEmptyInput)
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	rows, err := sheet.Decode(bytes.NewReader(data), filename)
	if err != nil {
		return LoadResult{}, s.uploadFailed(ctx, uploadID, filename, err)
	}

	set, issues, err := rates.NormalizeWithIssues(rows)
	if err != nil {
		return LoadResult{}, s.uploadFailed(ctx, uploadID, filename, err)
	}
	for _, issue := range issues {
		log.Debug("cell skipped", "row", issue.Row, "column", issue.Column, "value", issue.Value)
	}

	result := LoadResult{
		UploadID: uploadID,
		FileName: filename,
		Source:   store.SourceUpload,
		Shape:    set.Shape,
		Rules:    set.Len(),
		Skipped:  len(issues),
	}

	now := s.now()
	s.holder.Replace(&set, store.SourceUpload, now)

	if err := s.cache.Save(ctx, s.cfg.CacheKey, store.NewSnapshot(&set, now)); err != nil {
		log.Warn("rate data not cached", "error", err)
		result.Warning = MapError(err).Message
		result.Message = msgUploadOnly
	} else {
		result.Cached = true
		result.Message = msgUploadCached
	}
	s.setMessage(result.Message)

	s.history.Add(HistoryEntry{
		UploadID: uploadID,
		Action:   ActionUpload,
		FileName: filename,
		Rules:    result.Rules,
		Skipped:  result.Skipped,
		Cached:   result.Cached,
		ClientIP: ClientIPFromContext(ctx),
		At:       now,
	})

	log.Info("upload completed",
		"shape", set.Shape,
		"rules", result.Rules,
		"skipped", result.Skipped,
		"cached", result.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// uploadFailed records a failed upload and returns err.
func (s *Service) uploadFailed(ctx context.Context, uploadID, filename string, err error) error {
	logging.FromContext(ctx).Warn("upload failed", "file", filename, "error", err)
	s.history.Add(HistoryEntry{
		UploadID: uploadID,
		Action:   ActionUpload,
		FileName: filename,
		ClientIP: ClientIPFromContext(ctx),
		Error:    MapError(err).Code,
		At:       s.now(),
	})
	return err
}

// Reset drops the cached upload and swaps the default file in with a
// single replace, so readers see either the upload or the default. The
// default failing to load clears the rule set and is reflected in the
// returned message, not as an error.
func (s *Service) Reset(ctx context.Context) (LoadResult, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if err := s.cache.Delete(ctx, s.cfg.CacheKey); err != nil {
		return LoadResult{}, fmt.Errorf("reset: clear cache: %w", err)
	}
	s.history.Add(HistoryEntry{Action: ActionReset, ClientIP: ClientIPFromContext(ctx), At: s.now()})
	logging.FromContext(ctx).Info("rate data reset")

	result, err := s.swapDefault(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("default rate data not loaded after reset", "error", err)
		s.holder.Clear()
		s.setMessage(msgNoDefault)
		return LoadResult{Source: store.SourceNone, Message: msgNoDefault}, nil
	}
	return result, nil
}

// Quote resolves the price for q against the current rule set.
// Returns ErrNoData when nothing is loaded and rates.ErrNoMatch when no
// rule applies.
func (s *Service) Quote(ctx context.Context, q rates.Query) (Quote, error) {
	if err := ValidateQuery(q); err != nil {
		return Quote{}, err
	}

	cur := s.holder.Current()
	if cur == nil {
		return Quote{}, ErrNoData
	}

	rule, err := rates.Match(cur.Set, q)
	if err != nil {
		logging.FromContext(ctx).Debug("no rate for query",
			"origin", q.Origin,
			"destination", q.Destination,
			"weight", q.Weight,
		)
		return Quote{}, err
	}

	return Quote{Query: q, Price: rule.Price, Rule: rule}, nil
}

// Options returns the origins, destinations and exact weights of the
// current rule set. Empty lists when nothing is loaded.
func (s *Service) Options() Options {
	cur := s.holder.Current()
	if cur == nil {
		return Options{Origins: []string{}, Destinations: []string{}, Weights: []float64{}}
	}
	return Options{
		Origins:      rates.Origins(cur.Set),
		Destinations: rates.Destinations(cur.Set),
		Weights:      rates.Weights(cur.Set),
	}
}

// Preview returns the raw rows of the first n rules. n <= 0 uses the
// configured preview size.
func (s *Service) Preview(n int) Preview {
	if n <= 0 {
		n = s.cfg.PreviewRows
	}
	cur := s.holder.Current()
	if cur == nil {
		return Preview{Columns: []string{}, Rows: []rates.RawRow{}}
	}

	rules := cur.Set.Rules
	if n > len(rules) {
		n = len(rules)
	}
	rows := make([]rates.RawRow, n)
	for i := 0; i < n; i++ {
		rows[i] = rules[i].RawData
	}
	return Preview{Columns: cur.Set.Columns, Rows: rows, Total: len(rules)}
}

// Rules returns up to limit rules in stored order. limit <= 0 returns all.
func (s *Service) Rules(limit int) []rates.RateRule {
	cur := s.holder.Current()
	if cur == nil {
		return []rates.RateRule{}
	}
	rules := cur.Set.Rules
	if limit > 0 && limit < len(rules) {
		rules = rules[:limit]
	}
	out := make([]rates.RateRule, len(rules))
	copy(out, rules)
	return out
}

// Status describes the current rule set.
func (s *Service) Status() Status {
	st := Status{Message: s.Message()}
	cur := s.holder.Current()
	if cur == nil {
		return st
	}
	at := cur.LoadedAt
	st.Loaded = true
	st.Source = cur.Source
	st.CustomData = cur.Source == store.SourceUpload || cur.Source == store.SourceCache
	st.Rules = cur.Set.Len()
	st.Shape = cur.Set.Shape
	st.LoadedAt = &at
	return st
}

// Message returns the current data-source message.
func (s *Service) Message() string {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	return s.message
}

func (s *Service) setMessage(msg string) {
	s.msgMu.Lock()
	s.message = msg
	s.msgMu.Unlock()
}

// History returns recent loads, newest first.
func (s *Service) History() []HistoryEntry {
	return s.history.List()
}

// UploadStatus reports upload slot usage.
func (s *Service) UploadStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx is done.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
