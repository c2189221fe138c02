package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ServiceContainer is a started auxiliary container reachable at Addr (host:port).
type ServiceContainer struct {
	Container testcontainers.Container
	Addr      string
}

var (
	sharedRedis     *ServiceContainer
	sharedRedisOnce sync.Once
	sharedRedisErr  error

	sharedNATS     *ServiceContainer
	sharedNATSOnce sync.Once
	sharedNATSErr  error
)

// GetTestRedis returns a shared Redis container.
func GetTestRedis(t *testing.T) *ServiceContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRedisOnce.Do(func() {
		sharedRedis, sharedRedisErr = startService(testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		}, "6379")
	})

	if sharedRedisErr != nil {
		t.Fatalf("Failed to setup redis: %v", sharedRedisErr)
	}
	return sharedRedis
}

// GetTestNATS returns a shared NATS container with JetStream enabled.
func GetTestNATS(t *testing.T) *ServiceContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedNATSOnce.Do(func() {
		sharedNATS, sharedNATSErr = startService(testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"-js"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		}, "4222")
	})

	if sharedNATSErr != nil {
		t.Fatalf("Failed to setup nats: %v", sharedNATSErr)
	}
	return sharedNATS
}

func startService(req testcontainers.ContainerRequest, port string) (*ServiceContainer, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &ServiceContainer{
		Container: container,
		Addr:      fmt.Sprintf("%s:%s", host, mapped.Port()),
	}, nil
}
