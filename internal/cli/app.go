package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/amethyst/keeper/internal/account"
	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/password"
	"github.com/amethyst/keeper/internal/services"
	"github.com/google/uuid"
)

var (
	errUsage      = errors.New("usage")
	errAmbiguous  = errors.New("id prefix matches more than one account")
	errInvalidOTP = errors.New("seed is not valid base32")
)

type App struct {
	accounts services.AccountService
	gen      *password.Generator
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(accounts services.AccountService, gen *password.Generator, in io.Reader, out io.Writer) *App {
	return &App{
		accounts: accounts,
		gen:      gen,
		reader:   bufio.NewReader(in),
		out:      out,
	}
}

// Run executes args as a single command, or starts the REPL when args is
// empty.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Welcome to keeper (type 'help' for commands)")
		runREPL(ctx, a, a.reader)
		return nil
	}
	return dispatch(ctx, a, args)
}

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

// flags returns a FlagSet for a command that reports errors through its
// return value.
func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

// resolve turns a full id or a unique id prefix into an account id.
func (a *App) resolve(ctx context.Context, s string) (uuid.UUID, error) {
	if id, err := uuid.Parse(s); err == nil {
		return id, nil
	}

	list, err := a.accounts.List(ctx, true)
	if err != nil {
		return uuid.Nil, err
	}
	var found []*account.Account
	for _, acc := range list {
		if strings.HasPrefix(acc.ID().String(), strings.ToLower(s)) {
			found = append(found, acc)
		}
	}
	switch len(found) {
	case 0:
		return uuid.Nil, fmt.Errorf("account %q: %w", s, common.ErrorNotFound)
	case 1:
		return found[0].ID(), nil
	}
	return uuid.Nil, fmt.Errorf("%q: %w", s, errAmbiguous)
}

// resolveOne parses the single id argument of a command.
func (a *App) resolveOne(ctx context.Context, args []string, format string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, usage(format)
	}
	return a.resolve(ctx, args[0])
}

// readSecret asks for a secret twice on the terminal.
func (a *App) readSecret(prompt string) (string, error) {
	first, err := GetPassword(prompt, a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(first)

	second, err := GetPassword("Repeat "+strings.ToLower(prompt), a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		return "", errors.New("entries do not match")
	}
	return string(first), nil
}

// newPassword generates a password or reads one from the terminal.
func (a *App) newPassword(generate, plain bool) (string, error) {
	if generate {
		p, err := a.gen.Generate(!plain)
		if err != nil {
			return "", err
		}
		fmt.Fprintln(a.out, "Generated password:", p)
		return p, nil
	}

	p, err := a.readSecret("Password")
	if err != nil {
		return "", err
	}
	if !password.IsValid(p) {
		fmt.Fprintln(a.out, "Warning: password lacks an upper case letter, a lower case letter or a digit")
	}
	return p, nil
}
