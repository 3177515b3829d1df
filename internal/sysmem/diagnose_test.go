package sysmem

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withCgroupRoot(t *testing.T, dir string) {
	t.Helper()
	old := cgroupRoot
	cgroupRoot = dir
	t.Cleanup(func() { cgroupRoot = old })
}

func TestDiagnose(t *testing.T) {
	info := Diagnose()

	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Equal(t, os.Getpagesize(), info.PageSize)
	assert.Equal(t, PercentSupported, info.PercentSupported)
	assert.NotEmpty(t, info.AddressSpaceLimit)

	if PercentSupported {
		assert.Greater(t, info.TotalBytes, uint64(0))
	} else {
		assert.NotEmpty(t, info.Warnings)
	}
}

func TestDetectCgroupsVersion(t *testing.T) {
	t.Run("v2", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup.controllers"), []byte("memory cpu\n"), 0o600))
		withCgroupRoot(t, dir)
		assert.Equal(t, "v2", detectCgroupsVersion())
	})

	t.Run("v1", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "memory"), 0o700))
		withCgroupRoot(t, dir)
		assert.Equal(t, "v1", detectCgroupsVersion())
	})

	t.Run("unavailable", func(t *testing.T) {
		withCgroupRoot(t, t.TempDir())
		assert.Equal(t, "unavailable", detectCgroupsVersion())
	})
}

func TestCgroupMemoryLimit(t *testing.T) {
	tests := []struct {
		name    string
		version string
		file    string
		content string
		want    string
	}{
		{"v2 unlimited", "v2", "memory.max", "max\n", "max"},
		{"v2 limited", "v2", "memory.max", "536870912\n", "512 MiB"},
		{"v2 garbage", "v2", "memory.max", "lots\n", ""},
		{"v1 unlimited", "v1", "memory/memory.limit_in_bytes", "9223372036854771712\n", "max"},
		{"v1 limited", "v1", "memory/memory.limit_in_bytes", "1073741824\n", "1.0 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			withCgroupRoot(t, dir)

			assert.Equal(t, tt.want, cgroupMemoryLimit(tt.version))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		withCgroupRoot(t, t.TempDir())
		assert.Equal(t, "", cgroupMemoryLimit("v2"))
		assert.Equal(t, "", cgroupMemoryLimit("unavailable"))
	})
}
