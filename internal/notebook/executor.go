package notebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Executor runs all cells of a document in order and replaces their outputs.
type Executor interface {
	Execute(ctx context.Context, doc *Document) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, doc *Document) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, doc *Document) error {
	return f(ctx, doc)
}

// JupyterExecutor executes documents with `jupyter nbconvert`, streaming the
// notebook through stdin and stdout.
type JupyterExecutor struct {
	// Command is the jupyter binary; defaults to "jupyter".
	Command string
	// Kernel overrides the kernel named in the notebook metadata.
	Kernel string
	// Timeout bounds the execution of a single cell. Zero means no limit.
	Timeout time.Duration
	// Dir is the working directory of the kernel.
	Dir string
}

// Execute implements Executor.
func (e *JupyterExecutor) Execute(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("notebook: encode: %w", err)
	}

	command := e.Command
	if command == "" {
		command = "jupyter"
	}
	args := []string{"nbconvert", "--to", "notebook", "--execute", "--stdin", "--stdout", "--log-level=ERROR"}
	if e.Kernel != "" {
		args = append(args, "--ExecutePreprocessor.kernel_name="+e.Kernel)
	}
	if e.Timeout > 0 {
		args = append(args, "--ExecutePreprocessor.timeout="+strconv.Itoa(int(e.Timeout.Seconds())))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = e.Dir
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("notebook: execute: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var executed Document
	if err := json.Unmarshal(stdout.Bytes(), &executed); err != nil {
		return fmt.Errorf("notebook: decode executed notebook: %w", err)
	}
	doc.Cells = executed.Cells
	if executed.Metadata != nil {
		doc.Metadata = executed.Metadata
	}
	return nil
}
