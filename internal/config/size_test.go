package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize_ValidInputs(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"0", 0},
		{"", 0},
		{"1024", 1024},
		{"1KB", 1000},
		{"1KiB", 1024},
		{"4MiB", 4_194_304},
		{"10MB", 10_000_000},
		{"1.5KiB", 1536},
		{"1GiB", 1_073_741_824},
		{"1TB", 1_000_000_000_000},
		{"100B", 100},
		{" 2 mib ", 2_097_152},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseSize_InvalidInputs(t *testing.T) {
	for _, input := range []string{"abc", "-5", "-1MB", "MB", "1.2.3GB"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseSize(input)
			assert.Error(t, err)
		})
	}
}

func TestParseRate(t *testing.T) {
	got, err := ParseRate("5MB/s")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), got)

	got, err = ParseRate("512KiB")
	require.NoError(t, err)
	assert.Equal(t, int64(524_288), got)

	got, err = ParseRate("0")
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = ParseRate("fast/s")
	assert.Error(t, err)
}
