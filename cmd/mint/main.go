// Command mint issues a signed credential for a given user, for local
// testing against the gateway handshake.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/joho/godotenv"

	"deskchat/auth"
	"deskchat/domain"
)

func main() {
	userID := flag.String("user", "", "User id to embed in the credential")
	displayName := flag.String("name", "", "Display name (defaults to the user id)")
	role := flag.String("role", "customer", "Role (customer or agent)")
	validity := flag.Duration("validity", 24*time.Hour, "Credential validity")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *displayName == "" {
		*displayName = *userID
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	identity := domain.Identity{
		ID:          *userID,
		DisplayName: *displayName,
		Role:        *role,
	}

	token, err := auth.GenerateToken([]byte(secret), identity, *validity)
	if err != nil {
		log.Fatal("Error while signing credential: ", err)
	}

	color.Bold.Printf("Credential for %s (%s), valid %s\n", identity.ID, identity.Role, *validity)
	fmt.Println(token)
}
