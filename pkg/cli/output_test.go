package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextFormatter(t *testing.T) {
	t.Run("plain value", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&TextFormatter{}).FormatTo(&buf, "test message"))
		assert.Equal(t, "test message\n", buf.String())
	})

	t.Run("table columns are aligned", func(t *testing.T) {
		table := &Table{Headers: []string{"NAME", "ACTION"}}
		table.Append("deny-rm", "deny")
		table.Append("a", "allow")

		var buf bytes.Buffer
		require.NoError(t, (&TextFormatter{}).FormatTo(&buf, table))

		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "NAME     ACTION", lines[0])
		assert.Equal(t, "deny-rm  deny", lines[1])
		assert.Equal(t, "a        allow", lines[2])
	})
}

func TestJSONFormatter(t *testing.T) {
	t.Run("struct", func(t *testing.T) {
		var buf bytes.Buffer
		data := map[string]int{"rules": 3}
		require.NoError(t, (&JSONFormatter{}).FormatTo(&buf, data))
		assert.JSONEq(t, `{"rules":3}`, buf.String())
	})

	t.Run("table becomes row objects", func(t *testing.T) {
		table := &Table{Headers: []string{"Name", "Action"}}
		table.Append("deny-rm", "deny")

		var buf bytes.Buffer
		require.NoError(t, (&JSONFormatter{Indent: true}).FormatTo(&buf, table))

		var rows []map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
		assert.Equal(t, []map[string]string{{"name": "deny-rm", "action": "deny"}}, rows)
	})
}

func TestNewFormatter(t *testing.T) {
	f, err := NewFormatter(FormatJSON)
	require.NoError(t, err)
	assert.IsType(t, &JSONFormatter{}, f)

	f, err = NewFormatter(FormatText)
	require.NoError(t, err)
	assert.IsType(t, &TextFormatter{}, f)

	_, err = NewFormatter("xml")
	assert.Error(t, err)
}
