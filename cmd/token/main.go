// Command token mints a bearer token with the configured JWT secret.
//
//	JWT_SECRET=change-me-0123456789 go run ./cmd/token -user 1 -role admin
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/config"
)

func main() {
	userID := flag.Int64("user", 2, "user id to put in the token")
	roleFlag := flag.String("role", "employee", "admin or employee")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.Auth.Mode != "jwt" {
		fmt.Fprintln(os.Stderr, "AUTH_MODE is not jwt; the server will ignore tokens")
	}

	role, err := auth.ParseRole(*roleFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	token, expiresAt, err := auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL).Issue(*userID, role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.UTC().Format("2006-01-02 15:04:05Z"))
	fmt.Println(token)
}
