package version

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentIsSemverWithoutVPrefix(t *testing.T) {
	semver := regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)
	assert.Regexp(t, semver, Current, "Current must match <major>.<minor>.<patch>")
}
