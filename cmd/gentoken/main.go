// Development helper that mints an access token for a known user id.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/auth"
)

func main() {
	subject := flag.String("sub", "", "user id (token subject)")
	email := flag.String("email", "dev@example.com", "email claim")
	role := flag.String("role", string(auth.RoleAdmin), "role claim (admin or user)")
	expiry := flag.Duration("expiry", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: JWT_SECRET=... gentoken -sub <user id> [-email e] [-role admin|user]")
		os.Exit(2)
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "eventdesk"
	}

	// the server re-reads the stored role, so the subject must exist
	token, expires, err := auth.NewJWTManager(secret, *expiry, issuer).Generate(*subject, *email, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("JWT Token (expires " + expires.Format(time.RFC3339) + "):")
	fmt.Println(token)
	fmt.Println("\nTest with:")
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/auth/me\n", token)
}
