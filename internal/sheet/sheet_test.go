package sheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/freight/internal/core/rates"
)

func TestWriteThenDecode_Sample(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, "", SampleRows()))

	rows, err := Decode(bytes.NewReader(buf.Bytes()), "freight_data.xlsx")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"始发地", "目的地", "1kg", "2kg", "3kg", "4kg", "5kg", "10kg"}, rows[0].Keys())
	// Missing cells in the second row are omitted, not blank.
	assert.Equal(t, []string{"始发地", "目的地", "1kg", "2kg", "3kg"}, rows[1].Keys())

	v, ok := rows[0].Get("1kg")
	require.True(t, ok)
	assert.Equal(t, 1.63, v)

	v, ok = rows[0].Get("始发地")
	require.True(t, ok)
	assert.Equal(t, "新疆圆通仓", v)

	set, err := rates.Normalize(rows)
	require.NoError(t, err)
	assert.Len(t, set.Rules, 9)
	assert.Equal(t, rates.ShapeWide, set.Shape)
}

func TestWriteThenDecode_Template(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, TemplateSheet, TemplateRows()))

	rows, err := Decode(&buf, "freight_template.xlsx")
	require.NoError(t, err)
	assert.Equal(t, TemplateRows(), rows)

	set, err := rates.Normalize(rows)
	require.NoError(t, err)
	price, err := rates.Resolve(&set, rates.Query{Origin: "深圳", Destination: "成都", Weight: 50})
	require.NoError(t, err)
	assert.Equal(t, 500.0, price)
}

func TestDecode_CSV(t *testing.T) {
	input := "\ufeff始发地,目的地,最小重量,最大重量,价格\n" +
		"北京,上海,0,10,100\n" +
		",,,,\n" +
		"深圳,成都,,100,abc\n"

	rows, err := Decode(strings.NewReader(input), "rates.CSV")
	require.NoError(t, err)
	require.Len(t, rows, 2, "blank rows are skipped")

	assert.Equal(t, rates.RowOf("始发地", "北京", "目的地", "上海", "最小重量", 0.0, "最大重量", 10.0, "价格", 100.0), rows[0])
	assert.Equal(t, rates.RowOf("始发地", "深圳", "目的地", "成都", "最大重量", 100.0, "价格", "abc"), rows[1])
}

func TestDecode_CSVHeaderOnly(t *testing.T) {
	rows, err := Decode(strings.NewReader("始发地,目的地,1kg\n"), "x.csv")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = rates.Normalize(rows)
	assert.ErrorIs(t, err, rates.ErrEmptyInput)
}

func TestDecode_InvalidWorkbook(t *testing.T) {
	_, err := Decode(strings.NewReader("definitely not a zip"), "rates.xlsx")
	assert.ErrorIs(t, err, ErrInvalidWorkbook)
}

func TestHeaderNames(t *testing.T) {
	got := headerNames([]string{" 始发地 ", "Price", "Price", "", "", "Price"})
	assert.Equal(t, []string{"始发地", "Price", "Price_1", "__EMPTY", "__EMPTY_1", "Price_2"}, got)
}

func TestHeaders(t *testing.T) {
	rows := []rates.RawRow{
		rates.RowOf("a", 1.0, "b", 2.0),
		rates.RowOf("c", 3.0, "a", 4.0),
	}
	assert.Equal(t, []string{"a", "b", "c"}, Headers(rows))
}
