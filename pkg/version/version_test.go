package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	assert.Regexp(t, semver, Version)
}

func TestString_IncludesBuildInfo(t *testing.T) {
	// Given: injected build values
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })
	Version, Commit, Date = "1.2.0", "abc1234", "2026-01-02T03:04:05Z"

	// When/Then: every value appears in the string
	s := String()
	assert.Contains(t, s, "indexedsearch 1.2.0")
	assert.Contains(t, s, "abc1234")
	assert.Contains(t, s, "2026-01-02T03:04:05Z")
	assert.Contains(t, s, runtime.Version())
	assert.Equal(t, "1.2.0", Short())
}

func TestGetInfo_JSON(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, k := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, decoded, k)
	}
}
