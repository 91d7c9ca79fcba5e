// Command promptpix is a terminal front-end for the promptpix API.
//
//	promptpix login -email ada@example.com -password ...
//	promptpix generate -out fox.png "a red fox"
//	promptpix credits
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/promptpix/promptpix/internal/client"
)

const usage = `usage: promptpix [-server URL] [-token TOKEN] <command> [flags]

commands:
  register  create an account and print its token
  login     log in and print the session token
  credits   show the remaining credit balance
  plans     list credit plans
  buy       start a purchase of a plan
  generate  generate an image from a prompt
  logout    revoke the session token
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "promptpix:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("promptpix", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	server := global.String("server", envOr("PROMPTPIX_URL", "http://localhost:8080"), "API base URL")
	token := global.String("token", os.Getenv("PROMPTPIX_TOKEN"), "session token")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	c, err := client.New(client.Config{BaseURL: *server, Token: *token})
	if err != nil {
		return err
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "register":
		return runRegister(ctx, c, rest, stdout, stderr)
	case "login":
		return runLogin(ctx, c, rest, stdout, stderr)
	case "credits":
		resp, err := c.Credits(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s has %d credits\n", resp.User.Name, resp.Credits)
		return nil
	case "plans":
		resp, err := c.Plans(ctx)
		if err != nil {
			return err
		}
		for _, p := range resp.Plans {
			fmt.Fprintf(stdout, "%-10s %6d credits  $%d.%02d  %s\n", p.ID, p.Credits, p.Amount/100, p.Amount%100, p.Description)
		}
		return nil
	case "buy":
		if len(rest) != 1 {
			return errors.New("usage: promptpix buy <plan>")
		}
		resp, err := c.Purchase(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "transaction %s pending: %d credits for plan %s\n",
			resp.Transaction.ID, resp.Transaction.Credits, resp.Transaction.Plan)
		return nil
	case "generate":
		return runGenerate(ctx, c, rest, stdout, stderr)
	case "logout":
		return c.Logout(ctx)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runRegister(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", os.Getenv("PROMPTPIX_PASSWORD"), "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := c.Register(ctx, *name, *email, *password); err != nil {
		return err
	}
	fmt.Fprintln(stdout, c.Token())
	return nil
}

func runLogin(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "email address")
	password := fs.String("password", os.Getenv("PROMPTPIX_PASSWORD"), "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := c.Login(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Fprintln(stdout, c.Token())
	return nil
}

func runGenerate(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "image.png", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	g := client.NewGenerator(c, logger)
	g.OnInsufficientCredit = func(int64) {
		fmt.Fprintln(stderr, "out of credits; run `promptpix plans` and `promptpix buy <plan>`")
	}

	img, err := g.Submit(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, img, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	snap := g.Snapshot()
	fmt.Fprintf(stdout, "wrote %s (%d bytes), %d credits left\n", *out, len(img), snap.Credits)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
