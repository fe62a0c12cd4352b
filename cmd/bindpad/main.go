package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/bindpad/cmd"
	"github.com/xkilldash9x/bindpad/internal/config"
	"github.com/xkilldash9x/bindpad/internal/observability"
)

const panicLogFile = "panic.log"

// Swapped out in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	execute     = cmd.Execute
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(run(ctx))
}

// run returns the process exit code. An interrupted command exits cleanly.
func run(ctx context.Context) int {
	if err := execute(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return 1
	}
	return 0
}

// handlePanic writes the panic and its stack next to the config, then exits 2.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	path := filepath.Join(config.DefaultHome(), panicLogFile)
	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		err = osWriteFile(path, []byte(msg), 0o644)
		if err == nil {
			fmt.Fprintf(os.Stderr, "bindpad crashed; details written to %s\n", path)
			osExit(2)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "bindpad crashed:\n%s\n", msg)
	osExit(2)
}
