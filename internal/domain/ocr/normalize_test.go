package ocr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"2025-04-01", "2025-04-01", true},
		{"2025/4/1", "2025-04-01", true},
		{"2025年4月1日", "2025-04-01", true},
		{"２０２５年４月１日", "2025-04-01", true},
		{"令和7年4月1日", "2025-04-01", true},
		{"令和元年5月1日", "2019-05-01", true},
		{"R7.4.1", "2025-04-01", true},
		{"r07/04/01", "2025-04-01", true},
		{"平成31年4月30日", "2019-04-30", true},
		{"H30.12.31", "2018-12-31", true},
		{"昭和64年1月7日", "1989-01-07", true},
		{"2025-02-30", "", false},
		{"unknown", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw    string
		want   int64
		wantOK bool
	}{
		{`1200`, 1200, true},
		{`1200.4`, 1200, true},
		{`"1,200"`, 1200, true},
		{`"¥1,200"`, 1200, true},
		{`"１，２００円"`, 1200, true},
		{`"合計 3,300円"`, 3300, true},
		{`"1200円(税込)"`, 1200, true},
		{`"１２００円（税込）"`, 1200, true},
		{`"1.200"`, 1200, true},
		{`"1.234.567円"`, 1234567, true},
		{`"12.5"`, 13, true},
		{`1e20`, 0, false},
		{`"1e20"`, 0, false},
		{`-500`, 0, false},
		{`1000000000000`, MaxAmount, true},
		{`1000000000001`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, false},
		{`true`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseAmount(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPickTotal_ChoosesLargest(t *testing.T) {
	got, err := PickTotal(
		json.RawMessage(`980`),
		json.RawMessage(`"1,078円"`),
		json.RawMessage(`null`),
		json.RawMessage(`98`),
	)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1078), *got)
}

func TestPickTotal_NoCandidates(t *testing.T) {
	got, err := PickTotal(json.RawMessage(`null`))
	assert.Error(t, err)
	assert.Nil(t, got)
}
