// cmd/addkey/main.go
// Creates or updates an admin key in the database.
//
// Usage:
//
//	go run ./cmd/addkey -name "Lucky Streams" -key s3cret
//	go run ./cmd/addkey -name "Main Admin" -key root -role superuser
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/padraicbc/huntapi/adminkeys"
	"github.com/padraicbc/huntapi/config"
	bundb "github.com/padraicbc/huntapi/db"
	"github.com/padraicbc/huntapi/models"
)

func main() {
	name := flag.String("name", "", "display name (required)")
	value := flag.String("key", "", "plain-text key value (required)")
	keyName := flag.String("keyname", "", "url-safe key name, derived from -name when empty")
	kick := flag.String("kick", "", "kick.com username")
	role := flag.String("role", string(models.RoleStreamer), "streamer or superuser")
	flag.Parse()

	entry := adminkeys.Entry{
		DisplayName:  *name,
		KeyValue:     *value,
		KeyName:      *keyName,
		KickUsername: *kick,
		Role:         models.Role(*role),
	}
	if err := entry.Normalize(); err != nil {
		log.Fatal("invalid key: ", err)
	}

	cfg := config.Load()
	db := bundb.Setup(cfg)
	defer db.Close()

	ctx := context.Background()
	if err := bundb.CreateTables(ctx, db); err != nil {
		log.Fatal("create tables: ", err)
	}

	key := entry.Model(cfg.SecretKey())
	_, err := db.NewInsert().Model(key).
		On("CONFLICT (key_name) DO UPDATE").
		Set("key_hash = EXCLUDED.key_hash").
		Set("display_name = EXCLUDED.display_name").
		Set("kick_username = EXCLUDED.kick_username").
		Set("role = EXCLUDED.role").
		Set("is_active = TRUE").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		log.Fatal("insert key: ", err)
	}

	fmt.Printf("admin key %q saved as %s\n", key.KeyName, key.Role)
}
