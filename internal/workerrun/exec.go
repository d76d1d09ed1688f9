package workerrun

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// ExecRunner is the real CommandRunner, shelling out with os/exec the way
// distri's autobuilder drives its build commands.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, dir string, sink LineSink) ([]byte, bool, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout bytes.Buffer
	lw := NewLineSplittingWriter(ctx, sink)
	defer lw.Close()

	cmd.Stdout = io.MultiWriter(&stdout, lw)
	cmd.Stderr = lw

	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return stdout.Bytes(), false, nil
		}
		return stdout.Bytes(), false, err
	}
	return stdout.Bytes(), true, nil
}
