package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Get(ctx context.Context, path string) error
}

// runREPL starts a simple read-eval-print loop for the StudySync CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF, when ctx is done or when
// the user types "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help             show available commands
//	  - register         create an account
//	  - login            authenticate
//	  - get <path>       unauthenticated GET of an API path
//	  - exit | quit      leave the program
//
//	Logged in:
//	  - help             show available commands
//	  - whoami           show the signed-in user and token expiry
//	  - get <path>       authenticated GET of an API path, e.g. get /users/me
//	  - refresh          refresh the token pair now
//	  - logout           log out
//	  - exit | quit      leave the program
//
// Errors returned by command handlers are ignored here; handlers print their
// own messages. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(out, "ss (%s)> ", statusFn())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(out, "Available commands: whoami, get <path>, refresh, logout, exit")
			} else {
				fmt.Fprintln(out, "Available commands: register, login, get <path>, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "whoami":
			_ = a.WhoAmI(ctx)

		case "get":
			if len(args) != 1 {
				fmt.Fprintln(out, "Usage: get <path>")
				continue
			}
			_ = a.Get(ctx, args[0])

		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return

		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}
	}
}
