//go:build linux

package executor_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processGone reports whether pid no longer runs. Zombies count as gone:
// they hold no resources and are reaped by init.
func processGone(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	fields := strings.Fields(string(data))
	return len(fields) > 2 && fields[2] == "Z"
}

func TestExecute_TimeoutKillsProcessTree(t *testing.T) {
	requireTool(t, "python3")
	svc, _ := newService(t, time.Second)
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	code := fmt.Sprintf(`import subprocess, time
child = subprocess.Popen(["sleep", "60"])
open(%q, "w").write(str(child.pid))
time.sleep(60)
`, pidFile)

	res, err := svc.Execute(context.Background(), code, "python")
	require.NoError(t, err)
	assert.False(t, res.Succeeded)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return processGone(pid) }, 3*time.Second, 50*time.Millisecond,
		"grandchild %d must be killed with the process group", pid)
}
