package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/promptpix/promptpix/internal/model"
	"github.com/promptpix/promptpix/internal/repository"
)

type output struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Granted int64  `json:"granted"`
	Balance int64  `json:"balance"`
}

type options struct {
	databaseURL string
	userID      string
	email       string
	amount      int64
	format      string
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Getenv("DATABASE_URL"), os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, opts.databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	user, err := findUser(ctx, repo, opts.userID, opts.email)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	balance, err := repo.AddCredits(ctx, user.ID, opts.amount)
	if err != nil {
		fmt.Fprintln(os.Stderr, "add credits:", err)
		os.Exit(1)
	}

	out := output{
		UserID:  user.ID,
		Email:   user.Email,
		Granted: opts.amount,
		Balance: balance,
	}
	if err := writeOutput(os.Stdout, opts.format, out); err != nil {
		fmt.Fprintln(os.Stderr, "write output:", err)
		os.Exit(1)
	}
}

// parseOptions checks every flag before anything touches the database, so a
// rejected invocation never grants credits.
func parseOptions(args []string, defaultDatabaseURL string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("grant-credits", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.databaseURL, "database-url", defaultDatabaseURL, "PostgreSQL connection string")
	fs.StringVar(&opts.userID, "user-id", "", "User ID to credit")
	fs.StringVar(&opts.email, "email", "", "User email to credit (used when -user-id is empty)")
	fs.Int64Var(&opts.amount, "amount", 0, "Credits to add; negative values claw back")
	fs.StringVar(&opts.format, "format", "plain", "Output format: plain or json")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.format = strings.ToLower(strings.TrimSpace(opts.format))
	switch {
	case opts.databaseURL == "":
		return options{}, errors.New("DATABASE_URL is required")
	case opts.userID == "" && opts.email == "":
		return options{}, errors.New("one of -user-id or -email is required")
	case opts.amount == 0:
		return options{}, errors.New("-amount must be non-zero")
	case opts.format != "plain" && opts.format != "json":
		return options{}, fmt.Errorf("invalid format %q; use plain or json", opts.format)
	}
	return opts, nil
}

func writeOutput(w io.Writer, format string, out output) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	_, err := fmt.Fprintln(w, out.Balance)
	return err
}

func findUser(ctx context.Context, repo *repository.Repository, userID, email string) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	if userID != "" {
		user, err = repo.GetUserByID(ctx, userID)
	} else {
		user, err = repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if userID != "" && email != "" && !strings.EqualFold(user.Email, email) {
		return nil, fmt.Errorf("user %s has email %s, not %s", userID, user.Email, email)
	}
	return user, nil
}
