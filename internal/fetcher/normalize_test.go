package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTruncates(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int32
		want     string
	}{
		{"50000000000000", 6, "50000000"},
		{"1999999", 6, "1"},
		{"999999", 6, "0"},
		{"123456789012345678901234567890", 18, "123456789012"},
		{"42", 0, "42"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.amount, tc.decimals)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.amount)
	}
}

func TestNormalizeRejectsNonInteger(t *testing.T) {
	_, err := Normalize("12.5", 6)
	require.Error(t, err)
	_, err = Normalize("", 6)
	require.Error(t, err)
}
