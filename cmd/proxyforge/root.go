package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "proxyforge",
	Short: "ProxyForge - self-replenishing free proxy pool and forwarding gateway",
	Long: `ProxyForge maintains a pool of free, anonymous HTTP/SOCKS proxies and
exposes an HTTP gateway that forwards arbitrary requests through the pool.

It continuously acquires candidates from third-party listing sources,
validates their liveness, and rotates to the next proxy when forwarding
fails, so clients never have to track proxy health themselves.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
