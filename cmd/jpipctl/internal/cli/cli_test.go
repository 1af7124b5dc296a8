package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgs_Request(t *testing.T) {
	_, ctx, err := ParseArgs([]string{
		"request", "image.jp2",
		"--fsiz", "128,128",
		"--rsiz", "128,128",
	}, "test", "abc123", "2026-01-01")
	require.NoError(t, err)
	require.Equal(t, "request <target>", ctx.Command())
}

func TestParseArgs_Index(t *testing.T) {
	_, ctx, err := ParseArgs([]string{"index", "image.jp2"}, "test", "abc123", "2026-01-01")
	require.NoError(t, err)
	require.Equal(t, "index <target>", ctx.Command())
}
