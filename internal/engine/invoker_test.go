package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellCommand(script string) *TransferCommand {
	return &TransferCommand{Path: "sh", Args: []string{"-c", script}}
}

func TestInvokerStreamsOutput(t *testing.T) {
	inv := NewInvoker()

	var stdout, stderr []string
	code, err := inv.Run(context.Background(),
		shellCommand(`echo one; echo two; echo oops >&2`),
		func(line string) { stdout = append(stdout, line) },
		func(line string) { stderr = append(stderr, line) },
	)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"one", "two"}, stdout)
	assert.Equal(t, []string{"oops"}, stderr)
}

func TestInvokerReportsExitCode(t *testing.T) {
	inv := NewInvoker()

	code, err := inv.Run(context.Background(), shellCommand("exit 23"),
		func(string) {}, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, 23, code)
}

func TestInvokerStartFailure(t *testing.T) {
	inv := NewInvoker()

	_, err := inv.Run(context.Background(),
		&TransferCommand{Path: "/nonexistent/definitely-not-rsync"},
		func(string) {}, func(string) {})
	assert.Error(t, err)
}

func TestInvokerCanceledContextKillsProcess(t *testing.T) {
	inv := NewInvoker()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	code, err := inv.Run(ctx, shellCommand("sleep 30"), func(string) {}, func(string) {})
	require.NoError(t, err)
	assert.NotEqual(t, 0, code)
	assert.Less(t, time.Since(start), 5*time.Second)
}
