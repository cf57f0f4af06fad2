package templates

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/freight/internal/core"
	"github.com/JonMunkholm/freight/internal/core/rates"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{4.72, "4.72"},
		{12, "12.00"},
		{1.005, "1.00"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		if got := FormatPrice(tt.in); got != tt.want {
			t.Errorf("FormatPrice(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLayout(t *testing.T) {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<p>body</p>")
		return err
	})

	out := render(t, Layout("运费<计算>", NavData, body))

	assert.True(t, strings.HasPrefix(out, "<!doctype html>"))
	assert.Contains(t, out, "<title>运费&lt;计算&gt;</title>")
	assert.Contains(t, out, "<style>body{")
	assert.Contains(t, out, "<p>body</p>")
	assert.Contains(t, out, `<a href="/data" class="active">数据管理</a>`)
	assert.Contains(t, out, `<a href="/">运费计算</a>`)
}

func TestCalculator_Empty(t *testing.T) {
	out := render(t, Calculator(CalculatorData{Status: core.Status{Message: "x"}}))

	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "请先导入数据")
	assert.NotContains(t, out, "quote-result")
}

func TestCalculator_WithQuote(t *testing.T) {
	rule := rates.RateRule{
		Origin:      "北京",
		Destination: "上海",
		Weight:      rates.IntervalWeight(0, 10),
		Price:       100,
	}
	out := render(t, Calculator(CalculatorData{
		Status: core.Status{Loaded: true},
		Options: core.Options{
			Origins:      []string{"北京", "深圳"},
			Destinations: []string{"上海"},
			Weights:      []float64{1, 2.5},
		},
		Origin:      "北京",
		Destination: "上海",
		Weight:      "5",
		Quote:       &core.Quote{Price: 100, Rule: rule},
	}))

	assert.NotContains(t, out, "disabled")
	assert.Contains(t, out, `<option value="北京" selected>北京</option>`)
	assert.Contains(t, out, `<option value="深圳">深圳</option>`)
	assert.Contains(t, out, `<option value="2.5">2.5 kg</option>`)
	assert.Contains(t, out, `value="5"`)
	assert.Contains(t, out, "100.00 元")
	assert.Contains(t, out, "0-10 kg")
}

func TestCalculator_Error(t *testing.T) {
	out := render(t, Calculator(CalculatorData{
		Status: core.Status{Loaded: true},
		Error:  &core.UserMessage{Message: "未找到匹配的运费规则", Action: "a", Code: "RATE001"},
	}))
	assert.Contains(t, out, "未找到匹配的运费规则")
	assert.Contains(t, out, "RATE001")
}

func TestDataPage(t *testing.T) {
	row := rates.RowOf("始发地", "北京", "目的地", "<script>", "1kg", 12.0)
	out := render(t, DataPage(DataPageData{
		Status: core.Status{Loaded: true, CustomData: true, Message: "已加载上传的数据。"},
		Preview: core.Preview{
			Columns: []string{"始发地", "目的地", "1kg"},
			Rows:    []rates.RawRow{row},
			Total:   7,
		},
		History: []core.HistoryEntry{
			{Action: core.ActionUpload, FileName: "rates.xlsx", Rules: 7, At: time.Now()},
			{Action: core.ActionUpload, FileName: "bad.xlsx", Error: "FILE002", At: time.Now()},
		},
		Result: &core.LoadResult{Warning: "数据量过大，无法保存到缓存"},
	}))

	assert.Contains(t, out, "alert-success")
	assert.Contains(t, out, "重置为默认数据")
	assert.Contains(t, out, "已加载 7 条数据 (预览前1条)")
	assert.Contains(t, out, "<td>&lt;script&gt;</td>")
	assert.NotContains(t, out, "<td><script>")
	assert.Contains(t, out, "<td>12</td>")
	assert.Contains(t, out, "数据量过大")
	assert.Contains(t, out, "FILE002")
	assert.Contains(t, out, "7 条")
}

func TestDataPage_NotLoaded(t *testing.T) {
	out := render(t, DataPage(DataPageData{Status: core.Status{Message: "当前无数据，请上传 Excel。"}}))

	assert.Contains(t, out, "alert-warning")
	assert.NotContains(t, out, "重置为默认数据")
	assert.NotContains(t, out, "<table>")
}

func TestErrorAlert_Escapes(t *testing.T) {
	out := render(t, ErrorAlert(`<b>x</b>`, "", "ERR000"))
	assert.Contains(t, out, "&lt;b&gt;x&lt;/b&gt;")
	assert.Contains(t, out, `<div class="code">ERR000</div>`)
}

func TestDataPage_HistoryLimit(t *testing.T) {
	var hist []core.HistoryEntry
	for i := 0; i < historyLimit+3; i++ {
		hist = append(hist, core.HistoryEntry{Action: core.ActionReset, At: time.Now()})
	}
	out := render(t, DataPage(DataPageData{History: hist}))
	assert.Equal(t, historyLimit, strings.Count(out, "<td>重置</td>"))
}

func TestCalculator_QuoteFragment(t *testing.T) {
	out := render(t, QuoteResult(core.Quote{
		Price: 4.72,
		Rule:  rates.RateRule{Origin: "新疆圆通仓", Destination: "新疆维吾尔自治区", Weight: rates.ExactWeight(4)},
	}))
	assert.True(t, strings.HasPrefix(out, `<div class="result" id="quote-result">`))
	assert.Contains(t, out, `<div class="price">4.72 元</div>`)
	assert.Contains(t, out, "新疆圆通仓 → 新疆维吾尔自治区")
}

func TestRender_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := Calculator(CalculatorData{}).Render(ctx, &buf)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, buf.Len())
}
