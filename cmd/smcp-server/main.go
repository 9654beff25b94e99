// Command smcp-server runs the A2C-SMCP Server: the session registry and
// ack-bearing router mounted at /smcp.
package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/a2c-smcp/a2c-smcp-go/internal/server"
	"github.com/a2c-smcp/a2c-smcp-go/pkg/config"
)

func main() {
	config.LoadEnv()

	headerName := os.Getenv("SMCP_AUTH_HEADER")
	secret := os.Getenv("SMCP_ADMIN_SECRET")
	auth := server.NewHeaderSecretAuth(headerName, secret)
	if secret == "" {
		log.Printf("[Server] SMCP_ADMIN_SECRET not set, accepting unauthenticated connections")
	}

	hub := server.NewHub(auth)
	if v := os.Getenv("SMCP_FORWARD_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hub.ForwardSafety = time.Duration(n) * time.Second
		} else {
			log.Printf("[Server] invalid SMCP_FORWARD_TIMEOUT_SECONDS=%q, using default %v", v, hub.ForwardSafety)
		}
	}

	addr := os.Getenv("SMCP_LISTEN_ADDR")
	if addr == "" {
		addr = ":8700"
	}

	srv := server.NewServer(addr, hub)
	if err := srv.Start(); err != nil {
		log.Fatalf("[Server] fatal: %v", err)
	}
}
