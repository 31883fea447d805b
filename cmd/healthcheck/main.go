// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the /health endpoint returns HTTP 200, and 1
// otherwise. Compile with CGO_ENABLED=0 for a fully static binary.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("CONTACT_PORT")
	if port == "" {
		port = "8080"
	}
	url := flag.String("url", fmt.Sprintf("http://localhost:%s/health", port), "Health endpoint to probe")
	timeout := flag.Duration("timeout", 3*time.Second, "Request timeout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(*url)
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
