package core

import (
	"time"

	"github.com/JonMunkholm/freight/internal/core/rates"
	"github.com/JonMunkholm/freight/internal/store"
)

// Config holds the service settings. Zero values fall back to defaults
// in NewService.
type Config struct {
	DefaultFile   string        // Workbook loaded when nothing is cached
	CacheKey      string        // Key of the cached snapshot
	CacheMaxAge   time.Duration // Snapshots older than this are pruned
	PruneInterval time.Duration // How often the pruner runs
	PreviewRows   int           // Rows returned by Preview when n <= 0
	MaxFileSize   int64         // Upload size limit in bytes
	MaxConcurrent int           // Parallel upload slots
	MaxWait       time.Duration // Wait for an upload slot before ErrTooManyUploads
	HistorySize   int           // Entries kept by History
}

const (
	DefaultCacheKey    = "freight_data_cache"
	DefaultPreviewRows = 5
	DefaultHistorySize = 20
	DefaultMaxFileSize = 20 << 20
)

// LoadResult describes a completed load.
type LoadResult struct {
	UploadID string       `json:"uploadId"`
	FileName string       `json:"fileName,omitempty"`
	Source   store.Source `json:"source"`
	Shape    rates.Shape  `json:"shape"`
	Rules    int          `json:"rules"`
	Skipped  int          `json:"skipped"`
	Cached   bool         `json:"cached"`
	Warning  string       `json:"warning,omitempty"`
	Message  string       `json:"message"`
}

// Quote is a resolved price plus the rule that produced it.
type Quote struct {
	Query rates.Query    `json:"query"`
	Price float64        `json:"price"`
	Rule  rates.RateRule `json:"rule"`
}

// Status summarizes what the service currently holds.
type Status struct {
	Loaded     bool         `json:"loaded"`
	CustomData bool         `json:"customData"`
	Source     store.Source `json:"source"`
	Rules      int          `json:"rules"`
	Shape      rates.Shape  `json:"shape,omitempty"`
	LoadedAt   *time.Time   `json:"loadedAt,omitempty"`
	Message    string       `json:"message"`
}

// Options lists the values offered by the calculator form.
type Options struct {
	Origins      []string  `json:"origins"`
	Destinations []string  `json:"destinations"`
	Weights      []float64 `json:"weights"`
}

// Preview is the leading slice of the loaded data for display.
type Preview struct {
	Columns []string       `json:"columns"`
	Rows    []rates.RawRow `json:"rows"`
	Total   int            `json:"total"`
}

// Status messages shown on the data page.
const (
	msgNotLoaded     = "当前无数据，请上传 Excel。"
	msgDefaultLoaded = "已加载系统默认数据。"
	msgNoDefault     = "未找到默认数据，请上传 Excel。"
	msgCacheRestored = "已加载您上次上传的数据。"
	msgUploadCached  = "已加载您上传的本地数据（自动保存）。"
	msgUploadOnly    = "已加载上传的数据。"
)
