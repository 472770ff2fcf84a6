package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/amethyst/keeper/internal/account"
	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/totp"
)

const timeLayout = "2006-01-02 15:04"

func (a *App) Add(ctx context.Context, args []string) error {
	fs := a.flags("add")
	generate := fs.Bool("generate", false, "generate the password")
	plain := fs.Bool("plain", false, "generate without separators and special characters")
	seed := fs.String("totp", "", "base32 TOTP seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usage("add [-generate] [-plain] [-totp SEED] <service> <username>")
	}
	if *seed != "" && !totp.Valid(*seed) {
		return errInvalidOTP
	}

	p, err := a.newPassword(*generate, *plain)
	if err != nil {
		return err
	}
	comment, err := GetMultiline(a.reader, "Comment (optional)", a.out)
	if err != nil {
		return err
	}

	acc, err := a.accounts.Create(ctx, account.Params{
		Service:    fs.Arg(0),
		Username:   fs.Arg(1),
		Password:   p,
		Comment:    comment,
		TOTPSecret: *seed,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Saved", acc.ID())
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	fs := a.flags("list")
	all := fs.Bool("all", false, "include accounts in the trash")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := a.accounts.List(ctx, *all)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No accounts")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERVICE\tUSERNAME\tTOTP\tSTATE")
	for _, acc := range list {
		state := "active"
		if acc.IsDeleted() {
			state = "deleted"
		}
		otp := ""
		if acc.TOTP() {
			otp = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", acc.ID().String()[:8], acc.Service(), acc.Username(), otp, state)
	}
	return tw.Flush()
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := a.resolveOne(ctx, args, "show <id>")
	if err != nil {
		return err
	}
	acc, err := a.accounts.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "ID:      ", acc.ID())
	fmt.Fprintln(a.out, "Service: ", acc.Service())
	fmt.Fprintln(a.out, "Username:", acc.Username())
	if t := acc.Title(); t != nil {
		fmt.Fprintln(a.out, "Title:   ", *t)
	}
	if aliases := acc.Aliases(); len(aliases) > 0 {
		fmt.Fprintln(a.out, "Aliases: ", aliases)
	}
	fmt.Fprintln(a.out, "Created: ", acc.CreatedAt().Local().Format(timeLayout))
	if t := acc.EditedAt(); t != nil {
		fmt.Fprintln(a.out, "Edited:  ", t.Local().Format(timeLayout))
	}
	if t := acc.DeletedAt(); t != nil {
		fmt.Fprintln(a.out, "Deleted: ", t.Local().Format(timeLayout))
	}

	if p, ok, err := acc.Password(ctx); err != nil {
		return err
	} else if ok {
		fmt.Fprintln(a.out, "Password:", p)
	}
	if c, ok, err := acc.Comment(ctx); err != nil {
		return err
	} else if ok && c != "" {
		fmt.Fprintln(a.out, "Comment: ", c)
	}

	if acc.TOTP() {
		code, remaining, ok, err := a.accounts.Code(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(a.out, "TOTP:     %s (%s left)\n", code, remaining.Round(time.Second))
		} else {
			fmt.Fprintln(a.out, "TOTP:     seed is not valid base32")
		}
	}
	return nil
}

func (a *App) Rename(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("rename <id> <new-username>")
	}
	id, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	err = a.accounts.Rename(ctx, id, args[1])
	if errors.Is(err, common.ErrStaleSecrets) {
		fmt.Fprintln(a.out, "Renamed, but the old secret entries could not be removed")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Renamed")
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.resolveOne(ctx, args, "delete <id>")
	if err != nil {
		return err
	}
	if err := a.accounts.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Moved to trash")
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	id, err := a.resolveOne(ctx, args, "restore <id>")
	if err != nil {
		return err
	}
	if err := a.accounts.Restore(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Restored")
	return nil
}

func (a *App) Purge(ctx context.Context, args []string) error {
	id, err := a.resolveOne(ctx, args, "purge <id>")
	if err != nil {
		return err
	}
	if err := a.accounts.Purge(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Purged")
	return nil
}
