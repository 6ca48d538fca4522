package dataset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/clocktrack/internal/dwt"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    dwt.Timestamp
		wantErr bool
	}{
		{"0", 0, false},
		{"ff", 0xff, false},
		{"0x1A2b3C4d5E", 0x1a2b3c4d5e, false},
		{"0XFFFFFFFFFF", dwt.Timestamp(dwt.TimestampMask), false},
		{"10000000000", 0, true}, // 2^40
		{"0x", 0, true},
		{"", 0, true},
		{"xyz", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestRead(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"0x0000000100 0x0000000200",
		"",
		"300 400 extra columns are ignored",
		"   0xFFFFFFFFFF\t0x0000000005   ",
	}, "\n")

	got, err := Read(strings.NewReader(in))
	require.NoError(t, err)

	want := []dwt.Pair{
		{Send: 0x100, Receive: 0x200},
		{Send: 0x300, Receive: 0x400},
		{Send: dwt.Timestamp(dwt.TimestampMask), Receive: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		line string
	}{
		{"single column", "100 200\n300\n", "line 2"},
		{"bad send", "zz 200\n", "line 1"},
		{"bad receive", "100 200\n\n100 0x10000000000\n", "line 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dataset")
	require.NoError(t, os.WriteFile(path, []byte("1 2\n3 4\n"), 0644))

	pairs, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		n, start, end      int
		wantStart, wantEnd int
		wantErr            bool
	}{
		{"whole dataset", 10, 0, -1, 0, 10, false},
		{"explicit range", 10, 2, 5, 2, 5, false},
		{"end at n", 10, 9, 10, 9, 10, false},
		{"negative start", 10, -1, -1, 0, 0, true},
		{"end beyond n", 10, 0, 11, 0, 0, true},
		{"start equals end", 10, 4, 4, 0, 0, true},
		{"start past n", 10, 10, -1, 0, 0, true},
		{"empty dataset", 0, 0, -1, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := Bounds(tt.n, tt.start, tt.end)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestEstimateWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewEstimateWriter(&buf)
	require.NoError(t, w.Write(0.5, 1.00002, -3e-7))
	require.NoError(t, w.Write(1, 1, 0))
	require.NoError(t, w.Flush())

	assert.Equal(t, "0.5,1.00002,-3e-07\n1,1,0\n", buf.String())
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dataset.out", OutputPath("dataset"))
	assert.Equal(t, "/tmp/run1.txt.out", OutputPath("/tmp/run1.txt"))
}
