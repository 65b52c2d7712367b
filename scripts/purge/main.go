// Command purge removes booking handoff records and confirmation attempt
// counters from Redis.
//
// Usage:
//
//	go run ./scripts/purge session <session_id>
//	go run ./scripts/purge attempts <reference>
//	go run ./scripts/purge all
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/internal/payments"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		fmt.Println("Error: REDIS_ADDR environment variable not set")
		os.Exit(1)
	}
	opts := &redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")}
	if os.Getenv("REDIS_TLS") == "true" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		deleted int64
		err     error
	)
	switch os.Args[1] {
	case "session":
		requireArg()
		deleted, err = client.Del(ctx, handoff.KeyPrefix+os.Args[2]).Result()
	case "attempts":
		requireArg()
		deleted, err = client.Del(ctx, payments.ConfirmKeyPrefix+os.Args[2]).Result()
	case "all":
		deleted, err = deleteMatching(ctx, client, handoff.KeyPrefix+"*", payments.ConfirmKeyPrefix+"*")
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d key(s)\n", deleted)
}

func deleteMatching(ctx context.Context, client *redis.Client, patterns ...string) (int64, error) {
	var total int64
	for _, pattern := range patterns {
		iter := client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			n, err := client.Del(ctx, iter.Val()).Result()
			if err != nil {
				return total, err
			}
			total += n
		}
		if err := iter.Err(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func requireArg() {
	if len(os.Args) < 3 {
		usage()
	}
}

func usage() {
	fmt.Println("Usage: go run ./scripts/purge session <session_id> | attempts <reference> | all")
	os.Exit(1)
}
