// Command admin-token mints a RETLISTER_API_TOKEN for the edge proxy to
// present to the central server, storing only its bcrypt hash so a leaked
// log line or database dump never reveals the live secret.
package main

import (
	"bufio"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"retlister/internal/authtoken"
	"retlister/internal/restostore"
)

const bcryptCost = 12

func main() {
	fmt.Println("RetLister admin token minter")
	fmt.Println("=============================")
	fmt.Println()

	dbPath := getEnv("DB_PATH", "./data/retlister.db")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := restostore.InitializeDatabase(dbPath, logger)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	store := restostore.New(db, logger)

	subject := readSubject()
	jwtSecret := getEnv("JWT_SECRET", "retlister-dev-secret-change-in-production")
	issuer := authtoken.NewIssuer(jwtSecret)

	token, err := issuer.Mint(subject, 0)
	if err != nil {
		log.Fatalf("failed to mint token: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	if err != nil {
		log.Fatalf("failed to hash token: %v", err)
	}

	if err := store.SetMetadata("admin_token_hash", string(hash)); err != nil {
		log.Fatalf("failed to store token hash: %v", err)
	}

	fmt.Println()
	fmt.Println("Token minted. Set this as RETLISTER_API_TOKEN on the proxy:")
	fmt.Println()
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Only its bcrypt hash was stored server-side; the token above will not be shown again.")
}

func readSubject() string {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Subject (proxy instance or operator name): ")
	subject, _ := reader.ReadString('\n')
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "default-proxy"
	}

	fmt.Print("Passphrase (confirms operator presence, not stored): ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		log.Fatalf("failed to read passphrase: %v", err)
	}
	if len(strings.TrimSpace(string(passBytes))) == 0 {
		log.Fatal("passphrase must not be empty")
	}

	return subject
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
