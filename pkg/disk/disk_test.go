package disk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))

	_, err = FreeBytes("/does/not/exist")
	assert.Error(t, err)
}

func TestChecker_IsLow(t *testing.T) {
	testCases := []struct {
		name   string
		minMB  int
		free   map[string]uint64
		expect bool
	}{
		{
			name:   "disabled",
			minMB:  0,
			free:   map[string]uint64{"/data": 0},
			expect: false,
		},
		{
			name:   "enough space",
			minMB:  10,
			free:   map[string]uint64{"/data": 20 * MiB, "/other": 11 * MiB},
			expect: false,
		},
		{
			name:   "one file system low",
			minMB:  10,
			free:   map[string]uint64{"/data": 20 * MiB, "/other": 9 * MiB},
			expect: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewChecker(tc.minMB, "/data/a.db", "/data/b.db", "/other/c.db")
			assert.Equal(t, []string{"/data", "/other"}, c.paths)

			c.freeBytes = func(path string) (uint64, error) {
				return tc.free[path], nil
			}

			got, err := c.IsLow(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.expect, got)
		})
	}
}
