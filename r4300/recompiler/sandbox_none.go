//go:build !unicorn
// +build !unicorn

package recompiler

import "fmt"

func newSandboxExecutor() (Executor, error) {
	return nil, fmt.Errorf("amd64 sandbox needs the unicorn build tag: %w", ErrNoExecutor)
}
