package docker

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/moby/go-archive"
)

type (
	// CopyIn copies a host directory into the container before it starts. The
	// directory lands at ContainerDir/<base name of HostDir>.
	CopyIn struct {
		HostDir      string
		ContainerDir string
	}

	RunOptions struct {
		Image  string
		Cmd    []string
		CopyIn []CopyIn
	}

	// Output is what the container wrote, separated by stream.
	Output struct {
		Stdout string
		Stderr string
	}
)

// Run runs a Docker container to completion and returns its output. Sources
// are copied in rather than bind-mounted so remote daemons work as well.
func (c *Client) Run(ctx context.Context, opts RunOptions) (Output, error) {
	config := &container.Config{
		Image: opts.Image,
		Cmd:   opts.Cmd,
	}

	resp, err := c.cli.ContainerCreate(ctx, config, &container.HostConfig{}, nil, nil, "")
	if err != nil {
		return Output{}, fmt.Errorf("failed to create container: %w", err)
	}

	containerID := resp.ID
	defer func() {
		_ = c.cli.ContainerRemove(context.WithoutCancel(ctx), containerID, container.RemoveOptions{Force: true})
	}()

	for _, copyIn := range opts.CopyIn {
		if err := c.copyToContainer(ctx, containerID, copyIn); err != nil {
			return Output{}, err
		}
	}

	attachResp, err := c.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return Output{}, fmt.Errorf("failed to attach to container: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
	}()

	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return Output{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return Output{}, fmt.Errorf("error waiting for container: %w", err)
		}
	case status := <-statusCh:
		<-copied
		if status.StatusCode != 0 {
			if stderr.Len() > 0 {
				return Output{}, fmt.Errorf("container exited with code %d: %s", status.StatusCode, stderr.String())
			}
			return Output{}, fmt.Errorf("container exited with code %d", status.StatusCode)
		}
	}

	return Output{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (c *Client) copyToContainer(ctx context.Context, containerID string, copyIn CopyIn) error {
	absDir, err := filepath.Abs(copyIn.HostDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", copyIn.HostDir, err)
	}

	content, err := archive.TarWithOptions(filepath.Dir(absDir), &archive.TarOptions{
		IncludeFiles: []string{filepath.Base(absDir)},
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", absDir, err)
	}
	defer content.Close()

	if err := c.cli.CopyToContainer(ctx, containerID, copyIn.ContainerDir, content, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy %s into container: %w", absDir, err)
	}

	return nil
}
