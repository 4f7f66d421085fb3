package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/deepshield/deepshield-api/config"
	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/models"
)

// Operator utility to change the role of an existing account
// Usage: go run scripts/promote_admin.go <email> [admin|user]
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/promote_admin.go <email> [admin|user]")
		fmt.Println("Example: go run scripts/promote_admin.go reviewer@deepshield.ai admin")
		os.Exit(1)
	}

	email := os.Args[1]
	role := models.RoleAdmin
	if len(os.Args) > 2 {
		role = models.Role(os.Args[2])
	}
	if role != models.RoleAdmin && role != models.RoleUser {
		fmt.Printf("Unknown role %q\n", role)
		os.Exit(1)
	}

	conf := config.New()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := databases.NewClient(conf)
	if err != nil {
		fmt.Printf("Error creating client: %v\n", err)
		os.Exit(1)
	}
	if err := client.Connect(ctx); err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	users := databases.NewUserDatabase(databases.NewDatabase(conf, client))
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		fmt.Printf("No user with email %s: %v\n", email, err)
		os.Exit(1)
	}
	updated, err := users.SetRole(ctx, user.ID, role)
	if err != nil {
		fmt.Printf("Error updating role: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User: %s (%s)\n", updated.Email, updated.ID)
	fmt.Printf("Role: %s -> %s\n", user.Role, updated.Role)
	fmt.Printf("\nExisting tokens keep the old role in their claims until they expire;\n")
	fmt.Printf("privileged actions re-check the role against the database.\n")
}
