package syncer_test

import (
	"context"
	"fmt"
	"log"

	"github.com/karuta-app/karuta/internal/remote"
	"github.com/karuta-app/karuta/internal/store"
	"github.com/karuta-app/karuta/internal/syncer"
)

// This example demonstrates basic usage of the syncer package.
// Note: This is for documentation only and won't run as a test.
func ExampleNew() {
	ctx := context.Background()

	// Open the local store
	local, err := store.Open(".karuta/karuta.db")
	if err != nil {
		log.Fatal(err)
	}
	defer local.Close()

	if err := local.InitSchema(ctx); err != nil {
		log.Fatal(err)
	}

	// Connect to the hosted backend and attach a session
	client, err := remote.Connect(remote.Config{
		URL: "libsql://karuta-org.turso.io",
		Key: "auth-token",
	}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	session, err := remote.LoadSession(".karuta/session.json")
	if err != nil {
		log.Fatal(err)
	}
	client.SetSession(session)

	// Run one reconciliation
	s := syncer.New(local, client, syncer.Options{})
	result, err := s.Sync(ctx)
	if err != nil {
		// Configuration-class failure, tell the user
		log.Fatal(err)
	}
	if result == nil {
		fmt.Println("Skipped (not logged in or already syncing)")
		return
	}

	fmt.Printf("Synced as %s\n", result.Account)
}
