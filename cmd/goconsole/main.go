// Command goconsole signs an operator in and out of a remote admin API and
// reports the persisted session.
//
// Usage:
//
//	goconsole [-env file] login -identifier admin@example.com [-secret s]
//	goconsole [-env file] logout
//	goconsole [-env file] whoami
//	goconsole [-env file] status
//
// Configuration comes from GOCONSOLE_* environment variables, optionally
// loaded from a .env file. When -secret is omitted the secret is read from
// GOCONSOLE_SECRET, a no-echo terminal prompt, or the first line of stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	goConsole "github.com/MrEthical07/goConsole"
	"github.com/MrEthical07/goConsole/internal/bootstrap"
	"golang.org/x/term"
)

const usage = `usage: goconsole [-env file] <command> [flags]

commands:
  login    sign in and persist the credential
  logout   forget the persisted credential
  whoami   print the signed-in operator
  status   print the session snapshot and guard decision
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("goconsole", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := global.String("env", ".env", "dotenv file to load before reading GOCONSOLE_* variables")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := bootstrap.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	rt, err := bootstrap.Open(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer rt.Close()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "login":
		return runLogin(ctx, rt.Store, rest, stdin, stdout, stderr)
	case "logout":
		rt.Store.Logout(ctx)
		fmt.Fprintln(stdout, "signed out")
		return 0
	case "whoami":
		return runWhoami(ctx, rt.Store, stdout, stderr)
	case "status":
		return runStatus(ctx, rt.Store, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		global.Usage()
		return 2
	}
}

func runLogin(ctx context.Context, store *goConsole.Store, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	identifier := fs.String("identifier", "", "operator email or username")
	secret := fs.String("secret", "", "operator secret (default: $GOCONSOLE_SECRET or stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *secret == "" {
		*secret = os.Getenv("GOCONSOLE_SECRET")
	}
	if *secret == "" {
		s, err := readSecret(stdin, stderr)
		if err != nil {
			fmt.Fprintf(stderr, "read secret: %v\n", err)
			return 1
		}
		*secret = s
	}

	profile, err := store.Login(ctx, goConsole.Credentials{Identifier: *identifier, Secret: *secret})
	if err != nil {
		var authErr *goConsole.AuthError
		if errors.As(err, &authErr) {
			fmt.Fprintln(stderr, authErr.Message())
		} else {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}
	fmt.Fprintf(stdout, "signed in as %s (%s)\n", displayName(profile), profile.Role)
	return 0
}

// readSecret prompts without echo on a terminal and otherwise reads the
// first line of stdin.
func readSecret(stdin io.Reader, stderr io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(stderr, "Secret: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runWhoami(ctx context.Context, store *goConsole.Store, stdout, stderr io.Writer) int {
	snap := resolve(ctx, store)
	if !snap.Authenticated() {
		msg := snap.Error
		if msg == "" {
			msg = "not signed in"
		}
		fmt.Fprintln(stderr, msg)
		return 1
	}
	return writeJSON(stdout, stderr, snap.User)
}

func runStatus(ctx context.Context, store *goConsole.Store, stdout io.Writer) int {
	resolve(ctx, store)
	snap, decision := store.Guard()
	out := struct {
		goConsole.Snapshot
		Decision string `json:"decision"`
	}{snap, decision.String()}
	return writeJSON(stdout, io.Discard, out)
}

func resolve(ctx context.Context, store *goConsole.Store) goConsole.Snapshot {
	store.Start(ctx)
	select {
	case <-store.Ready():
	case <-ctx.Done():
	}
	return store.Snapshot()
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}

func displayName(p goConsole.Profile) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}
