// Package templates holds the HTML pages as templ components. Edit the
// .templ files and run `templ generate`; the _templ.go files are generated.
package templates

import (
	"strconv"

	"github.com/JonMunkholm/freight/internal/core"
	"github.com/JonMunkholm/freight/internal/core/rates"
)

// Navigation targets highlighted in the bottom bar.
const (
	NavCalculator = "calculator"
	NavData       = "data"
)

// CalculatorData is everything the calculator page shows.
type CalculatorData struct {
	Status  core.Status
	Options core.Options

	// Submitted form values, echoed back after a quote.
	Origin      string
	Destination string
	Weight      string

	Quote *core.Quote
	Error *core.UserMessage
}

// DataPageData is everything the data-management page shows.
type DataPageData struct {
	Status  core.Status
	Preview core.Preview
	History []core.HistoryEntry
	Result  *core.LoadResult
	Error   *core.UserMessage
}

// historyLimit caps the entries listed on the data page.
const historyLimit = 5

var actionLabels = map[core.HistoryAction]string{
	core.ActionUpload:  "上传",
	core.ActionDefault: "默认数据",
	core.ActionRestore: "缓存恢复",
	core.ActionReset:   "重置",
}

func recentHistory(entries []core.HistoryEntry) []core.HistoryEntry {
	if len(entries) > historyLimit {
		return entries[:historyLimit]
	}
	return entries
}

func historyOutcome(e core.HistoryEntry) string {
	if e.Error != "" {
		return e.Error
	}
	return strconv.Itoa(e.Rules) + " 条"
}

// FormatPrice renders a price with two decimals.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

// formatWeight renders a weight without trailing zeros.
func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// cellText renders one preview cell; a missing column is blank.
func cellText(row rates.RawRow, col string) string {
	v, _ := row.Get(col)
	return formatCell(v)
}

// formatCell renders a raw spreadsheet value for the preview table.
func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

const styleTag = "<style>" + styles + "</style>"

const styles = `body{margin:0;font-family:-apple-system,"PingFang SC","Microsoft YaHei",sans-serif;background:#f5f5f5;color:rgba(0,0,0,.88)}
.app{max-width:430px;margin:0 auto;padding:16px 16px 96px;min-height:100vh;background:#fff}
.head{display:flex;justify-content:space-between;align-items:center;margin-bottom:20px}
h1{font-size:24px;margin:0}
label{display:block;margin:12px 0 4px}
input,select,button{width:100%;box-sizing:border-box;padding:8px;font-size:16px;border:1px solid #d9d9d9;border-radius:6px}
button{background:#1677ff;color:#fff;border:0;margin-top:16px;cursor:pointer}
button:disabled{background:#bfbfbf}
.link{background:none;color:#1677ff;padding:0;width:auto;margin:4px 0 0;font-size:14px}
.hint{color:rgba(0,0,0,.45);text-align:center;margin-top:8px}
.result{margin-top:24px;padding:16px;text-align:center;background:#f6ffed;border:1px solid #b7eb8f;border-radius:8px}
.price{font-size:32px;color:#3f8600}
.alert{padding:12px;border-radius:8px;margin-bottom:16px;word-break:break-all}
.alert-success{background:#f6ffed;border:1px solid #b7eb8f}
.alert-warning{background:#fffbe6;border:1px solid #ffe58f}
.alert-error{background:#fff2f0;border:1px solid #ffccc7}
.code{color:rgba(0,0,0,.45);font-size:12px}
.preview{margin-top:24px;overflow-x:auto}
table{border-collapse:collapse;margin-top:12px;font-size:13px}
th,td{border:1px solid #f0f0f0;padding:4px 8px;white-space:nowrap}
th{background:#fafafa}
nav{position:fixed;bottom:0;left:0;right:0;margin:0 auto;max-width:430px;background:#fff;border-top:1px solid #f0f0f0;display:flex}
nav a{flex:1;text-align:center;padding:12px 0;color:rgba(0,0,0,.45);text-decoration:none}
nav a.active{color:#1677ff}`
