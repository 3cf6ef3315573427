package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// CleanupLabel marks containers started by tests. Its value is the test name.
const CleanupLabel = "stdcheck-test"

// TestingT is the part of testing.T the docker helpers need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Helper()
}

func newDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// DockerClient returns a client for the local daemon and removes the test's
// labelled containers when it ends. Without a reachable daemon the test is
// skipped.
func DockerClient(t TestingT) *client.Client {
	t.Helper()

	cli, err := newDockerClient()
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		removed, err := removeLabeled(ctx, cli, CleanupLabel+"="+t.Name())
		if err != nil {
			t.Logf("container cleanup: %v", err)
		}
		for _, name := range removed {
			t.Logf("removed container %s", name)
		}
		_ = cli.Close()
	})
	return cli
}

// SweepContainers removes every container carrying CleanupLabel, including
// ones left behind by interrupted runs. It returns how many were removed.
func SweepContainers(ctx context.Context) (int, error) {
	cli, err := newDockerClient()
	if err != nil {
		return 0, fmt.Errorf("failed to create docker client: %w", err)
	}
	defer cli.Close()

	removed, err := removeLabeled(ctx, cli, CleanupLabel)
	return len(removed), err
}

// removeLabeled stops and removes containers matching a label filter
// ("key" or "key=value") and returns their names.
func removeLabeled(ctx context.Context, cli *client.Client, label string) ([]string, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", label)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var removed []string
	var errs []string
	for _, c := range containers {
		name := c.ID[:12]
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		timeout := 10
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		removed = append(removed, name)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to remove containers: %s", strings.Join(errs, "; "))
	}
	return removed, nil
}

// UniqueContainerName returns stdcheck-test-<prefix>-<test>-<random>.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s-%s-%s-%s", CleanupLabel, prefix, containerSafe(t.Name()), hex.EncodeToString(b))
}

// ContainerLabels returns the labels DockerClient's cleanup looks for.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{CleanupLabel: t.Name()}
}

// containerSafe keeps [A-Za-z0-9], maps separators to '-' and caps the length.
func containerSafe(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '/' || r == '_' || r == '-':
			sb.WriteByte('-')
		}
		if sb.Len() >= 30 {
			break
		}
	}
	return sb.String()
}
