//go:build integration

package executor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SSHContainerConfig configures the throwaway SSH-enabled container the
// integration test dials. Adapted from the teacher's
// TestEnvironment/SSHContainerConfig (originally keyed off a multi-host
// replica-set topology), narrowed to the single container this package's
// integration test actually needs — this domain has no equivalent
// multi-node topology object, just a fleet of otherwise-identical hosts.
type SSHContainerConfig struct {
	ImageName      string
	Username       string
	Password       string
	StartupTimeout time.Duration
}

func (c SSHContainerConfig) withDefaults() SSHContainerConfig {
	if c.ImageName == "" {
		c.ImageName = "fleetd-ssh-node:latest"
	}
	if c.Username == "" {
		c.Username = "testuser"
	}
	if c.Password == "" {
		c.Password = "testpass"
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = 60 * time.Second
	}
	return c
}

// SSHContainer is a running SSH-enabled container plus the coordinates
// needed to dial it.
type SSHContainer struct {
	container testcontainers.Container
	Host       string
	Port       int
	Username   string
	Password   string
}

// LaunchSSHContainer starts a single container exposing an SSH daemon.
func LaunchSSHContainer(ctx context.Context, cfg SSHContainerConfig) (*SSHContainer, error) {
	cfg = cfg.withDefaults()

	req := testcontainers.ContainerRequest{
		Image:        cfg.ImageName,
		ExposedPorts: []string{"22/tcp"},
		WaitingFor: wait.ForListeningPort("22/tcp").WithStartupTimeout(cfg.StartupTimeout),
		Name:       fmt.Sprintf("fleetd-test-%s", randomSuffix(6)),
		AutoRemove: true,
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start SSH container: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "22")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped SSH port: %w", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	return &SSHContainer{
		container: container,
		Host:      host,
		Port:      mappedPort.Int(),
		Username:  cfg.Username,
		Password:  cfg.Password,
	}, nil
}

// Addr is the dialable "host:port" for this container.
func (c *SSHContainer) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Terminate stops and removes the container.
func (c *SSHContainer) Terminate(ctx context.Context) error {
	return c.container.Terminate(ctx)
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)[:n]
}
