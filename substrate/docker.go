// Host execution substrate: list running instances, run read-only
// commands inside them. The production implementation drives the
// docker CLI; anything satisfying Substrate works (tests use fakes).

package substrate

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

type Logger interface {
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
}

// Instance is one running container visible on the host.
type Instance struct {
	ID   string
	Name string
}

type Substrate interface {
	// List enumerates the running instances.
	List(ctx context.Context) ([]Instance, error)
	// Exec runs argv inside the instance and returns its stdout.
	// A failed start, non-zero exit or expired context returns *ExecError.
	Exec(ctx context.Context, id string, argv []string) ([]byte, error)
}

type Docker struct {
	Bin string
	Log Logger
}

func NewDocker(bin string) *Docker {
	return &Docker{Bin: bin}
}

func DefaultBin() string {
	path, _ := exec.LookPath("docker")
	return path
}

const psFormat = "{{.ID}}\t{{.Names}}"

func (d *Docker) List(ctx context.Context) ([]Instance, error) {
	if d.Bin == "" {
		return nil, errors.New("docker binary missing")
	}

	cmd := exec.CommandContext(ctx, d.Bin, "ps", "--no-trunc", "--format", psFormat)
	if d.Log != nil {
		d.Log.Debugf("Command ran: %v", cmd)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, NewListError(err, ctx.Err(), stderr.String())
	}

	return ParsePS(stdout.String()), nil
}

// ParsePS decodes `docker ps --format "{{.ID}}\t{{.Names}}"` output.
// Lines without both fields are skipped.
func ParsePS(output string) []Instance {
	instances := make([]Instance, 0)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			continue
		}
		instances = append(instances, Instance{
			ID:   fields[0],
			Name: fields[1],
		})
	}
	return instances
}

func (d *Docker) Exec(ctx context.Context, id string, argv []string) ([]byte, error) {
	if d.Bin == "" {
		return nil, errors.New("docker binary missing")
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	args := append([]string{"exec", id}, argv...)
	cmd := exec.CommandContext(ctx, d.Bin, args...)
	if d.Log != nil {
		d.Log.Debugf("Command ran: %v", cmd)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), NewExecError(id, argv, err, ctx.Err(), exitCode(err), stderr.String())
	}

	return stdout.Bytes(), nil
}

func exitCode(err error) int {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}
