package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
)

var inContainer = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// ResolveHostForDocker maps loopback hosts to host.docker.internal when the process runs
// in a container, so PostgreSQL, Redis and NATS on the host stay reachable.
func ResolveHostForDocker(host string) string {
	if !inContainer() {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}

// Addr returns the host:port of the Redis server.
func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(ResolveHostForDocker(c.Host), fmt.Sprint(c.Port))
}

// ResolvedURL returns URL with its host passed through ResolveHostForDocker.
func (c *NATSConfig) ResolvedURL() string {
	u, err := url.Parse(c.URL)
	if err != nil || u.Hostname() == "" {
		return c.URL
	}
	host := ResolveHostForDocker(u.Hostname())
	if port := u.Port(); port != "" {
		host = net.JoinHostPort(host, port)
	}
	u.Host = host
	return u.String()
}
