// Command token-generator prints a signed access token for local testing
// of the tasks API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/phrazzld/tasks-api/internal/config"
	"github.com/phrazzld/tasks-api/internal/service/auth"
)

func main() {
	userID := flag.String("user", "", "user id placed in the token (required)")
	email := flag.String("email", "", "email placed in the token")
	minutes := flag.Int("minutes", 60, "token lifetime in minutes")
	secret := flag.String("secret", os.Getenv("TASKS_AUTH_JWT_SECRET"),
		"signing secret, at least 32 characters (defaults to TASKS_AUTH_JWT_SECRET)")
	flag.Parse()

	if *userID == "" || *minutes < 1 {
		fmt.Fprintln(os.Stderr, "error: -user is required and -minutes must be positive")
		flag.Usage()
		os.Exit(2)
	}

	svc, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            *secret,
		TokenLifetimeMinutes: *minutes,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	token, err := svc.GenerateToken(context.Background(), *userID, *email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
