package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// printFn writes the prompt without a trailing newline.
var printFn = fmt.Print

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Add(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Pending(ctx context.Context) error
	Requeue(ctx context.Context, args []string) error
	Policy(ctx context.Context, args []string) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
}

const helpText = `Available commands:
  add <type> [name=value ...]        create a row
  update <type> <id> name=value ...  patch a row (name=null removes a field)
  delete <type> <id>                 delete a row
  (l)ist <type> [all]                list rows, "all" includes tombstones
  list dirty                        list unsynced rows of every kind
  show <type> <id>                   show a row with its sync state
  sync [force]                       sync now, "force" restarts a running sync
  status                             connectivity and last sync result
  pending                            unsynced outbox entries
  requeue <entry-id>|all             retry dead entries
  policy [name]                      show or set the conflict policy
  login | logout                     set the access token | clear local data
  exit | quit
Types: account, category, transaction, budget, goal`

// runREPL reads commands from scanner and dispatches them to a until EOF
// or "exit"/"quit". promptFn is called before every read; an empty prompt
// is not printed. Command errors are reported and the loop goes on.
func runREPL(ctx context.Context, a execIface, promptFn func() string, scanner *bufio.Scanner) {
	for {
		if p := promptFn(); p != "" {
			printFn(p)
		}
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "add":
			err = a.Add(ctx, args)
		case "update":
			err = a.Update(ctx, args)
		case "delete", "rm":
			err = a.Delete(ctx, args)
		case "l", "list":
			err = a.List(ctx, args)
		case "show":
			err = a.Show(ctx, args)
		case "sync":
			err = a.Sync(ctx, args)
		case "status":
			err = a.Status(ctx)
		case "pending":
			err = a.Pending(ctx)
		case "requeue":
			err = a.Requeue(ctx, args)
		case "policy":
			err = a.Policy(ctx, args)
		case "login":
			err = a.Login(ctx)
		case "logout":
			err = a.Logout(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("error:", err)
		}
	}
}
