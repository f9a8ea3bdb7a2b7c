// Command issue-token mints a signed bearer credential for local development
// and operational use. Production tokens come from the identity issuer; this
// tool only needs the shared signing secret.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/assetica/platform-core/internal/auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	var (
		secret       = flag.String("secret", os.Getenv("AUTH_SECRET"), "Signing secret (defaults to AUTH_SECRET)")
		issuer       = flag.String("issuer", "assetica-identity", "Issuer claim")
		audience     = flag.String("audience", "platform-core", "Audience claim")
		subject      = flag.String("subject", "", "Subject claim (required)")
		tenantID     = flag.String("tenant", "", "Tenant id claim")
		capabilities = flag.String("capabilities", "", "Comma-separated capabilities, e.g. admin")
		ttl          = flag.Duration("ttl", time.Hour, "Token lifetime")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("signing secret is required: set AUTH_SECRET or pass -secret")
	}
	if *subject == "" {
		log.Fatal("-subject is required")
	}

	var caps []string
	for _, c := range strings.Split(*capabilities, ",") {
		if c = strings.TrimSpace(c); c != "" {
			caps = append(caps, c)
		}
	}

	now := time.Now()
	token, err := auth.Sign([]byte(*secret), auth.Claims{
		Issuer:       *issuer,
		Subject:      *subject,
		Audience:     *audience,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(*ttl).Unix(),
		TenantID:     *tenantID,
		Capabilities: caps,
	})
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Println(token)
}
