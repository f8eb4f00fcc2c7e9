// Package seed loads development fixtures into the users table.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/Skryldev/mobile-boilerplate-api/db"
	"github.com/Skryldev/mobile-boilerplate-api/models"
	"github.com/Skryldev/mobile-boilerplate-api/repo"
)

//go:embed users.yml
var usersYAML []byte

// Fixtures is the document layout of users.yml.
type Fixtures struct {
	Users []models.CreateUserParams `yaml:"users"`
}

// Load parses the embedded fixtures.
func Load() (Fixtures, error) {
	return Parse(usersYAML)
}

// Parse decodes a fixtures document. Unknown keys and entries without a name
// or email are rejected.
func Parse(data []byte) (Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixtures{}, fmt.Errorf("seed: decode: %w", err)
	}
	for i, u := range f.Users {
		if u.Name == "" || u.Email == "" {
			return Fixtures{}, fmt.Errorf("seed: user %d: name and email are required", i)
		}
	}
	return f, nil
}

// Run deletes every user and inserts the fixtures in one transaction.
func Run(ctx context.Context, database *db.DB, f Fixtures) ([]*models.User, error) {
	var inserted []*models.User
	err := database.ExecTx(ctx, func(tx *db.Tx) error {
		users := repo.NewUserRepo(tx)
		removed, err := users.DeleteAll(ctx)
		if err != nil {
			return err
		}
		inserted, err = users.BatchInsert(ctx, f.Users)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "seed: users replaced", "removed", removed, "inserted", len(inserted))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return inserted, nil
}
