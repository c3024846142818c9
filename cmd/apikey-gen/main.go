// Command apikey-gen mints an API key for a user and stores its HMAC hash.
// The raw key is printed once to stdout and never persisted.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/cartd/internal/domain/auth"
	"github.com/xenking/cartd/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		pepper      string
		userID      int64
		name        string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&pepper, "pepper", "", "HMAC pepper for API key hashing (or CART_API_KEY_PEPPER env)")
	flag.Int64Var(&userID, "user-id", 0, "user the key authenticates as")
	flag.StringVar(&name, "name", "", "human-readable key name")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if pepper == "" {
		pepper = os.Getenv("CART_API_KEY_PEPPER")
	}
	if databaseURL == "" || userID == 0 || name == "" {
		slog.Error("required: --database-url (or DATABASE_URL), --user-id, --name")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	key, err := run(ctx, databaseURL, pepper, userID, name)
	if err != nil {
		slog.Error("key generation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The raw key goes to stdout so it can be captured by scripts.
	fmt.Println(key)
}

func run(ctx context.Context, databaseURL, pepper string, userID int64, name string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "generate key")
	}
	key := hex.EncodeToString(raw)

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return "", errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewAPIKeyRepository(pool)
	err = repo.Create(ctx, &auth.APIKeyInfo{
		ID:      uuid.New().String(),
		KeyHash: auth.HashKey([]byte(pepper), key),
		Name:    name,
		UserID:  userID,
	})
	if err != nil {
		return "", errors.Wrap(err, "store key")
	}

	slog.Info("api key created", slog.String("name", name), slog.Int64("user_id", userID))
	return key, nil
}
