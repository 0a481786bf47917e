package space

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuard_Authorize(t *testing.T) {
	tests := []struct {
		name   string
		free   int64
		margin int64
		size   int64
		want   bool
	}{
		{name: "fits with room", free: 1000, margin: 100, size: 500, want: true},
		{name: "fits exactly", free: 1000, margin: 100, size: 900, want: true},
		{name: "one byte over", free: 1000, margin: 100, size: 901, want: false},
		{name: "margin alone exceeds free", free: 50, margin: 100, size: 1, want: false},
		{name: "zero margin", free: 1000, margin: 0, size: 1000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(t.TempDir(), tt.margin, nil)
			g.freeBytes = func(path string) (int64, error) {
				return tt.free, nil
			}

			ok, free, err := g.Authorize(tt.size)
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
			require.Equal(t, tt.free, free)
		})
	}
}

func TestGuard_Authorize_ProbeError(t *testing.T) {
	g := NewGuard(t.TempDir(), 0, nil)
	probeErr := errors.New("statfs failed")
	g.freeBytes = func(path string) (int64, error) {
		return 0, probeErr
	}

	ok, _, err := g.Authorize(100)
	require.False(t, ok)
	require.ErrorIs(t, err, probeErr)
}

func TestGuard_Authorize_RealFilesystem(t *testing.T) {
	g := NewGuard(t.TempDir(), 0, nil)

	ok, free, err := g.Authorize(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Positive(t, free)
}
