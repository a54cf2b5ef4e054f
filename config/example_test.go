package config_test

import (
	"context"
	"fmt"
	"log"

	"github.com/flowstate/flowcloud/config"
)

func ExampleLoad() {
	// Load with defaults only (no config file)
	cfg, err := config.Load(nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Port: %d, Keys: %s\n", cfg.Server.Port, cfg.Keys.Backend)
	// Output: Port: 8080, Keys: file
}

func ExampleWithContext() {
	cfg, _ := config.Load(nil, nil)

	// Store config in context
	ctx := config.WithContext(context.Background(), cfg)

	// Retrieve later (e.g., in a subcommand)
	retrieved, err := config.FromContext(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Verify path: %s\n", retrieved.Auth.VerifyPath)
	// Output: Verify path: /flowcloud-auth
}
