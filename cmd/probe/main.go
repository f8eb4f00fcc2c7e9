// Command probe exercises a running API the way the mobile client does:
// checks health, lists users and creates a throwaway test user.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kong"

	"github.com/Skryldev/mobile-boilerplate-api/apiclient"
	"github.com/Skryldev/mobile-boilerplate-api/models"
)

type Command struct {
	BaseURL string        `name:"base-url" help:"API base URL." env:"API_BASE_URL" default:"http://localhost:3000"`
	Timeout time.Duration `help:"Request timeout." default:"10s"`

	Health         HealthCommand         `cmd:"" help:"Check API and database health."`
	Users          UsersCommand          `cmd:"" help:"List users."`
	CreateTestUser CreateTestUserCommand `cmd:"" name:"create-test-user" help:"Create a user with a unique test email."`
}

type App struct {
	Client *apiclient.Client
}

func main() {
	command := new(Command)
	ctx := kong.Parse(
		command,
		kong.Name("probe"),
		kong.Description("Smoke-test client for the mobile boilerplate API."),
	)
	err := ctx.Run(&App{
		Client: apiclient.New(command.BaseURL,
			apiclient.WithTimeout(command.Timeout),
			apiclient.WithUserAgent("mobile-boilerplate-probe"),
		),
	})
	ctx.FatalIfErrorf(err)
}

type HealthCommand struct{}

func (c *HealthCommand) Run(app *App) error {
	h, err := app.Client.CheckHealth(context.Background())
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	fmt.Printf("status: %s  database: %s\n", h.Status, h.Database)
	return nil
}

type UsersCommand struct {
	Search string `help:"Case-insensitive name or email filter."`
	Page   int    `help:"Page number." default:"1"`
	Limit  int    `help:"Page size." default:"10"`
}

func (c *UsersCommand) Run(app *App) error {
	users, err := app.Client.ListUsers(context.Background(), models.ListUsersParams{
		Search: c.Search,
		Page:   c.Page,
		Limit:  c.Limit,
	})
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}
	for _, u := range users {
		fmt.Printf("%s (%s)\n", u.Name, u.Email)
	}
	fmt.Printf("%d users\n", len(users))
	return nil
}

type CreateTestUserCommand struct {
	Name string `help:"Display name." default:"Test User"`
}

// testEmail is unique per millisecond.
func testEmail(now time.Time) string {
	return fmt.Sprintf("test%d@example.com", now.UnixMilli())
}

func (c *CreateTestUserCommand) Run(app *App) error {
	u, err := app.Client.CreateUser(context.Background(), c.Name, testEmail(time.Now()))
	if err != nil {
		return fmt.Errorf("create-test-user: %w", err)
	}
	fmt.Printf("created user %d: %s (%s)\n", u.ID, u.Name, u.Email)
	return nil
}
