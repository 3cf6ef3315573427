package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage         = "ghcr.io/hkuds/lightrag:latest"
	ContainerNamePrefix  = "stdcheck-lightrag"
	DefaultContainerName = ContainerNamePrefix
	DefaultPort          = "9621"
	ContainerPort        = "9621/tcp"
	DataDir              = "/app/data/rag_storage"
	Label                = "stdcheck-lightrag"

	DefaultEmbeddingModel = "Qwen/Qwen3-Embedding-8B"
	DefaultEmbeddingDim   = 4096
)

// ContainerStatus represents the state of the LightRAG container.
type ContainerStatus string

const (
	StatusRunning   ContainerStatus = "running"
	StatusStopped   ContainerStatus = "stopped"
	StatusNotFound  ContainerStatus = "not_found"
	StatusStarting  ContainerStatus = "starting"
	StatusUnhealthy ContainerStatus = "unhealthy"
)

// GenerateContainerName derives a container name unique to a home directory,
// so two installs on one host don't share a knowledge base.
func GenerateContainerName(homePath string) string {
	sum := sha256.Sum256([]byte(homePath))
	return ContainerNamePrefix + "-" + hex.EncodeToString(sum[:])[:8]
}

// DockerManager manages the LightRAG server container lifecycle.
type DockerManager struct {
	cli           *client.Client
	containerName string
	imageName     string
	dataPath      string // host path bound to DataDir
	hostPort      string
	labels        map[string]string
	env           []string
}

// DockerConfig holds configuration for the Docker manager.
type DockerConfig struct {
	ContainerName string
	Image         string
	DataPath      string
	HostPort      string
	Labels        map[string]string

	// Model endpoints handed to the LightRAG server. The LLM and embedding
	// bindings both speak the OpenAI-compatible API.
	LLMModel        string
	LLMHost         string
	LLMAPIKey       string
	EmbeddingModel  string
	EmbeddingDim    int
	EmbeddingHost   string
	EmbeddingAPIKey string

	// APIKey protects the LightRAG server itself.
	APIKey string
}

// NewDockerManager creates a new Docker manager for LightRAG.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	cfg = cfg.withDefaults()

	labels := map[string]string{Label: "true"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	return &DockerManager{
		cli:           cli,
		containerName: cfg.ContainerName,
		imageName:     cfg.Image,
		dataPath:      cfg.DataPath,
		hostPort:      cfg.HostPort,
		labels:        labels,
		env:           cfg.containerEnv(),
	}, nil
}

func (cfg DockerConfig) withDefaults() DockerConfig {
	if cfg.ContainerName == "" {
		cfg.ContainerName = DefaultContainerName
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.HostPort == "" {
		cfg.HostPort = DefaultPort
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.EmbeddingHost == "" {
		cfg.EmbeddingHost = cfg.LLMHost
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = cfg.LLMAPIKey
	}
	return cfg
}

// containerEnv builds the LightRAG server environment.
func (cfg DockerConfig) containerEnv() []string {
	env := []string{
		"HOST=0.0.0.0",
		"PORT=9621",
		"WORKING_DIR=" + DataDir,
		"LLM_BINDING=openai",
		"EMBEDDING_BINDING=openai",
		"EMBEDDING_MODEL=" + cfg.EmbeddingModel,
		"EMBEDDING_DIM=" + strconv.Itoa(cfg.EmbeddingDim),
	}
	add := func(key, value string) {
		if value != "" {
			env = append(env, key+"="+value)
		}
	}
	add("LLM_MODEL", cfg.LLMModel)
	add("LLM_BINDING_HOST", cfg.LLMHost)
	add("LLM_BINDING_API_KEY", cfg.LLMAPIKey)
	add("EMBEDDING_BINDING_HOST", cfg.EmbeddingHost)
	add("EMBEDDING_BINDING_API_KEY", cfg.EmbeddingAPIKey)
	add("LIGHTRAG_API_KEY", cfg.APIKey)
	return env
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// Start ensures the container is running. started reports whether this call
// created or started it (false when it was already running).
func (m *DockerManager) Start(ctx context.Context) (started bool, err error) {
	if _, err := m.cli.Ping(ctx); err != nil {
		return false, fmt.Errorf("docker is not running: %w", err)
	}

	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return false, err
	}

	switch status {
	case StatusRunning:
		return false, nil
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return false, fmt.Errorf("failed to start existing container: %w", err)
		}
		return true, nil
	case StatusNotFound:
		if err := m.createAndStart(ctx); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("container in unexpected state: %s", status)
	}
}

// Stop stops the LightRAG container.
func (m *DockerManager) Stop(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}

	timeout := 10
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Status returns the current status of the LightRAG container.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	status, _, err := m.getContainerStatus(ctx)
	return status, err
}

// Logs returns the container logs.
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return "", err
	}
	if status == StatusNotFound {
		return "", fmt.Errorf("container not found")
	}

	logs, err := m.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer logs.Close()

	logBytes, err := io.ReadAll(logs)
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return string(logBytes), nil
}

// URL returns the LightRAG API URL.
func (m *DockerManager) URL() string {
	return fmt.Sprintf("http://localhost:%s", m.hostPort)
}

func (m *DockerManager) createAndStart(ctx context.Context) error {
	if err := m.ensureImage(ctx); err != nil {
		return err
	}

	containerConfig := &container.Config{
		Image:  m.imageName,
		Env:    m.env,
		Labels: m.labels,
		ExposedPorts: nat.PortSet{
			ContainerPort: struct{}{},
		},
		Healthcheck: &container.HealthConfig{
			Test:        []string{"CMD", "curl", "-sf", "http://localhost:9621/health"},
			Interval:    5 * time.Second,
			Timeout:     5 * time.Second,
			Retries:     12,
			StartPeriod: 10 * time.Second,
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: m.hostPort},
			},
		},
	}
	if m.dataPath != "" {
		hostConfig.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: m.dataPath,
				Target: DataDir,
			},
		}
	}

	resp, err := m.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, m.containerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

func (m *DockerManager) getContainerStatus(ctx context.Context) (ContainerStatus, string, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", m.containerName)

	containers, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return StatusNotFound, "", nil
	}

	c := containers[0]
	switch c.State {
	case "running":
		return StatusRunning, c.ID, nil
	case "exited", "dead":
		return StatusStopped, c.ID, nil
	case "created", "restarting":
		return StatusStarting, c.ID, nil
	default:
		return ContainerStatus(c.State), c.ID, nil
	}
}

// ensureImage pulls the LightRAG image if not present.
func (m *DockerManager) ensureImage(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.imageName); err == nil {
		return nil
	}

	reader, err := m.cli.ImagePull(ctx, m.imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}
