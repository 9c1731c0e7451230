// Command authctl is the operator tool for sessionauth: it hashes
// passwords, seeds and migrates the fallback user store, and writes legacy
// sessions for migration testing.
//
// Usage:
//
//	authctl hash [-scheme bcrypt|argon2id] [-cost n]
//	authctl seed-user -email addr [-name n] [-role r] [-id uuid] [-dsn url]
//	authctl migrate -dsn url
//	authctl legacy-session -redis addr -user-id id -email addr [-ttl 24h]
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// readPassword and isTerminal are replaced in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// stdinFd is the descriptor checked for a terminal before prompting.
	stdinFd int
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
}

var commands = []command{
	{"hash", "hash a password read from the terminal", runHash},
	{"seed-user", "create a fallback store user (prints SQL without -dsn)", runSeedUser},
	{"migrate", "apply the fallback store schema", runMigrate},
	{"legacy-session", "write a legacy session into Redis and print its cookie", runLegacySession},
}

// errUsage marks errors already explained on stderr.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, stdinFd: int(os.Stdin.Fd())}
	os.Exit(c.main(ctx, os.Args[1:]))
}

func (c *cli) main(ctx context.Context, args []string) int {
	if len(args) == 0 {
		c.usage()
		return 2
	}
	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		err := cmd.run(ctx, c, args[1:])
		switch {
		case err == nil:
			return 0
		case errors.Is(err, errUsage):
			return 2
		default:
			fmt.Fprintf(c.stderr, "authctl %s: %v\n", cmd.name, err)
			return 1
		}
	}
	if args[0] == "-h" || args[0] == "help" {
		c.usage()
		return 0
	}
	fmt.Fprintf(c.stderr, "authctl: unknown command %q\n", args[0])
	c.usage()
	return 2
}

func (c *cli) usage() {
	fmt.Fprintln(c.stderr, "usage: authctl <command> [flags]")
	for _, cmd := range commands {
		fmt.Fprintf(c.stderr, "  %-15s %s\n", cmd.name, cmd.summary)
	}
}

// password prompts without echo on a terminal and otherwise reads one line
// from stdin, so scripts can pipe the secret in.
func (c *cli) password() (string, error) {
	if isTerminal(c.stdinFd) {
		fmt.Fprint(c.stderr, "Password: ")
		pw, err := readPassword(c.stdinFd)
		fmt.Fprintln(c.stderr)
		if err != nil {
			return "", err
		}
		return string(pw), checkPassword(string(pw))
	}

	line, err := bufio.NewReader(c.stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	return pw, checkPassword(pw)
}

func checkPassword(pw string) error {
	if pw == "" {
		return errors.New("empty password")
	}
	return nil
}
