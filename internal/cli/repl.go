package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

var errUnknownCommand = errors.New("unknown command")

// execIface is the command surface the dispatcher drives. App implements it;
// tests can provide a stub.
type execIface interface {
	Add(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	Passwd(ctx context.Context, args []string) error
	Comment(ctx context.Context, args []string) error
	OTP(ctx context.Context, args []string) error
	OTPRemove(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error
	Purge(ctx context.Context, args []string) error
	Generate(ctx context.Context, args []string) error
}

const helpText = "Available commands: add, (l)ist, show, rename, passwd, comment, otp, otp-remove, delete, restore, purge, generate, exit"

// dispatch runs the command named by args[0].
func dispatch(ctx context.Context, a execIface, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help":
		printlnFn(helpText)
		return nil
	case "add":
		return a.Add(ctx, rest)
	case "l", "list":
		return a.List(ctx, rest)
	case "show":
		return a.Show(ctx, rest)
	case "rename":
		return a.Rename(ctx, rest)
	case "passwd":
		return a.Passwd(ctx, rest)
	case "comment":
		return a.Comment(ctx, rest)
	case "otp":
		return a.OTP(ctx, rest)
	case "otp-remove":
		return a.OTPRemove(ctx, rest)
	case "delete":
		return a.Delete(ctx, rest)
	case "restore":
		return a.Restore(ctx, rest)
	case "purge":
		return a.Purge(ctx, rest)
	case "generate":
		return a.Generate(ctx, rest)
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

// runREPL reads commands line by line and dispatches them until EOF or
// "exit"/"quit". Command errors are printed and the loop continues. Commands
// prompting for input read from the same reader.
func runREPL(ctx context.Context, a execIface, reader *bufio.Reader) {
	for {
		printlnFn("keeper> ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		if err := dispatch(ctx, a, parts); err != nil {
			printlnFn("Error:", err)
		}
	}
}
