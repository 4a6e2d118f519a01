//go:build windows

package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoSweepAfterRun(t *testing.T) {
	assert.False(t, sweepAfterRun)
}
