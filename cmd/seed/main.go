// Seeds demo watch state for local development. The file keys are fake,
// so the first poll cycles log fetch failures for them until real files
// replace them via the API or the bot.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/figwatch/figwatch/internal/automigrate"
	"github.com/figwatch/figwatch/internal/store"
)

func main() {
	st, closeStore, err := openStore()
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	ctx := context.Background()

	subs := store.NewSubscriptionState()
	subs.Updates["42"] = []string{"DemoFileAlpha", "DemoFileBeta"}
	subs.Updates["design-ops"] = []string{"DemoFileAlpha"}
	subs.Comments["42"] = []string{"DemoFileAlpha"}

	if err := st.SaveSubscriptions(ctx, subs); err != nil {
		log.Fatal("Failed to seed subscriptions: ", err)
	}
	fmt.Println("✅ Seeded subscriptions for 2 subscribers")

	versions := store.VersionState{
		"DemoFileAlpha": "100",
		"DemoFileBeta":  "7",
	}
	if err := st.SaveVersions(ctx, versions); err != nil {
		log.Fatal("Failed to seed version baselines: ", err)
	}
	fmt.Println("✅ Seeded version baselines for 2 files")

	comments := store.CommentState{
		"DemoFileAlpha": {"900001", "900002"},
	}
	if err := st.SaveComments(ctx, comments); err != nil {
		log.Fatal("Failed to seed comment baseline: ", err)
	}
	fmt.Println("✅ Seeded comment baseline for DemoFileAlpha")

	loaded, err := st.LoadSubscriptions(ctx)
	if err != nil {
		log.Fatal("Failed to verify: ", err)
	}
	fmt.Printf("✅ Verified: %d update subscribers persisted\n", len(loaded.Updates))
}

func openStore() (store.StateStore, func(), error) {
	if dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL")); dbURL != "" {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		if err := automigrate.Run(db, "migrations"); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store.NewPGStore(db), func() { db.Close() }, nil
	}

	dir := strings.TrimSpace(os.Getenv("FIGWATCH_STATE_DIR"))
	if dir == "" {
		dir = "data"
	}
	fmt.Printf("Seeding file store in %s\n", dir)
	return store.NewFileStore(dir), func() {}, nil
}
