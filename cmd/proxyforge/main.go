// ProxyForge maintains a self-replenishing pool of free HTTP/SOCKS proxies
// and exposes an HTTP gateway that forwards arbitrary requests through the
// pool, rotating proxies on failure.
//
// Usage:
//
//	# Start the service with default configuration
//	proxyforge run
//
//	# Start with a custom configuration file
//	proxyforge run --config /path/to/config.yaml
//
//	# Probe every configured listing source once
//	proxyforge sources
//
//	# Show version information
//	proxyforge version
package main

func main() {
	Execute()
}
