package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/promptguard/gateway/internal/auth"
)

func main() {
	client := flag.String("client", "", "client ID the key belongs to (required)")
	name := flag.String("name", "", "human-friendly key name")
	env := flag.String("env", "prod", "environment prefix")
	rpm := flag.Int("rpm", 60, "requests per minute limit")
	quota := flag.Int("daily-quota", 10000, "analyses per day (0 disables the quota)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *client == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -client is required")
		os.Exit(1)
	}

	// Generate key
	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	keyHash := auth.HashKey(rawKey)
	keyPrefix := auth.KeyPrefix(rawKey)

	// Connect to database
	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "promptguard")
		pass := envOrDefault("DB_PASSWORD", "")
		dbname := envOrDefault("DB_NAME", "promptguard")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	// Insert key
	_, err = conn.Exec(ctx, `
		INSERT INTO api_keys (key_hash, key_prefix, client_id, name, rpm_limit, daily_quota)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, keyHash, keyPrefix, *client, *name, *rpm, *quota)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== PromptGuard API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key Prefix:  %s\n", keyPrefix)
	fmt.Printf("  Client:      %s\n", *client)
	if *name != "" {
		fmt.Printf("  Name:        %s\n", *name)
	}
	fmt.Printf("  RPM Limit:   %d\n", *rpm)
	fmt.Printf("  Daily Quota: %d\n", *quota)
	fmt.Println()
	fmt.Println("  API Key (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("=====================================")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
