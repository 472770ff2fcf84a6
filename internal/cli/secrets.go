package cli

import (
	"context"
	"fmt"

	"github.com/amethyst/keeper/internal/totp"
)

func (a *App) Passwd(ctx context.Context, args []string) error {
	fs := a.flags("passwd")
	generate := fs.Bool("generate", false, "generate the password")
	plain := fs.Bool("plain", false, "generate without separators and special characters")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := a.resolveOne(ctx, fs.Args(), "passwd [-generate] [-plain] <id>")
	if err != nil {
		return err
	}

	p, err := a.newPassword(*generate, *plain)
	if err != nil {
		return err
	}
	if err := a.accounts.SetPassword(ctx, id, p); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password updated")
	return nil
}

func (a *App) Comment(ctx context.Context, args []string) error {
	id, err := a.resolveOne(ctx, args, "comment <id>")
	if err != nil {
		return err
	}
	c, err := GetMultiline(a.reader, "Comment", a.out)
	if err != nil {
		return err
	}
	if err := a.accounts.SetComment(ctx, id, c); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Comment updated")
	return nil
}

func (a *App) OTP(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("otp <id> <seed>")
	}
	if !totp.Valid(args[1]) {
		return errInvalidOTP
	}
	id, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.accounts.SetTOTPSecret(ctx, id, args[1]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "TOTP enabled")
	return nil
}

func (a *App) OTPRemove(ctx context.Context, args []string) error {
	id, err := a.resolveOne(ctx, args, "otp-remove <id>")
	if err != nil {
		return err
	}
	if err := a.accounts.RemoveTOTPSecret(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "TOTP removed")
	return nil
}

func (a *App) Generate(_ context.Context, args []string) error {
	fs := a.flags("generate")
	plain := fs.Bool("plain", false, "no separators and special characters")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := a.gen.Generate(!*plain)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, p)
	return nil
}
