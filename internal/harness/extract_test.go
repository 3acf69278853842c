package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
		wantErr bool
	}{
		{
			name:    "log preamble",
			message: `INFO foo=bar [{"id":"1"}]`,
			want:    `[{"id":"1"}]`,
		},
		{
			name:    "multi line preamble",
			message: "INFO memory is not limited, skipping package=github.com/KimMachineGun/automemlimit/memlimit\n[{\"id\":\"a\",\"filename\":\"a.txt\"},{\"id\":\"b\",\"filename\":\"b.txt\"}]\n",
			want:    `[{"id":"a","filename":"a.txt"},{"id":"b","filename":"b.txt"}]`,
		},
		{
			name:    "bracketed preamble",
			message: `WARN [storage] slow start [{"id":"1"}]`,
			want:    `[{"id":"1"}]`,
		},
		{
			name:    "nested arrays",
			message: `[{"tags":["x","y"]}]`,
			want:    `[{"tags":["x","y"]}]`,
		},
		{
			name:    "empty array",
			message: `sessions: []`,
			want:    `[]`,
		},
		{
			name:    "no brackets",
			message: "no brackets here",
			wantErr: true,
		},
		{
			name:    "reversed brackets",
			message: "] then [",
			wantErr: true,
		},
		{
			name:    "not json",
			message: "INFO [not json]",
			wantErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ExtractJSONArray(test.message)
			if test.wantErr {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
				return
			}
			require.NoError(t, err)
			encoded, err := json.Marshal(got)
			require.NoError(t, err)
			require.JSONEq(t, test.want, string(encoded))
		})
	}
}

func TestDecodeJSONArray(t *testing.T) {
	type session struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}

	got, err := DecodeJSONArray[session](`INFO x [{"id":"1","filename":"a.txt"},{"id":"2","filename":"b.txt"}]`)
	require.NoError(t, err)
	require.Equal(t, []session{{ID: "1", Filename: "a.txt"}, {ID: "2", Filename: "b.txt"}}, got)

	_, err = DecodeJSONArray[session](`[1, 2]`)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
