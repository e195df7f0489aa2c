// Package tokenctl implements the operator commands behind cmd/tokenctl:
// sweeping expired tokens, adding and disabling users, and inspecting or
// revoking a refresh token family.
package tokenctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/server"
	"golang.org/x/term"
)

// ErrUsage is returned for unknown commands and missing arguments.
var ErrUsage = errors.New("usage")

const usage = `usage: tokenctl <command> [args] [config flags]

commands:
  sweep                       remove expired refresh tokens once
  useradd <username> [roles]  create a user, prompting for the password
  disable <username>          disable a user and revoke all of their tokens
  enable <username>           re-enable a disabled user
  revoke-family <familyId>    revoke every token of a family
  inspect <familyId>          list the tokens of a family
`

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

type App struct {
	core *server.Core
	out  io.Writer
	now  func() time.Time
}

func NewApp(core *server.Core, out io.Writer) *App {
	return &App{core: core, out: out, now: time.Now}
}

// Usage writes the command summary to w.
func Usage(w io.Writer) {
	fmt.Fprint(w, usage)
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "sweep":
		return a.sweep(ctx)
	case "useradd":
		if len(rest) < 1 {
			return fmt.Errorf("%w: useradd <username> [roles]", ErrUsage)
		}
		var roles []string
		if len(rest) > 1 {
			roles = splitRoles(rest[1])
		}
		return a.userAdd(ctx, rest[0], roles)
	case "disable":
		if len(rest) != 1 {
			return fmt.Errorf("%w: disable <username>", ErrUsage)
		}
		return a.setDisabled(ctx, rest[0], true)
	case "enable":
		if len(rest) != 1 {
			return fmt.Errorf("%w: enable <username>", ErrUsage)
		}
		return a.setDisabled(ctx, rest[0], false)
	case "revoke-family":
		if len(rest) != 1 {
			return fmt.Errorf("%w: revoke-family <familyId>", ErrUsage)
		}
		return a.revokeFamily(ctx, rest[0])
	case "inspect":
		if len(rest) != 1 {
			return fmt.Errorf("%w: inspect <familyId>", ErrUsage)
		}
		return a.inspect(ctx, rest[0])
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) sweep(ctx context.Context) error {
	n, err := a.core.Sweeper.SweepOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %d expired refresh tokens\n", n)
	return nil
}

func (a *App) userAdd(ctx context.Context, username string, roles []string) error {
	fmt.Fprintln(a.out, "Enter password")
	password, err := readPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	fmt.Fprintln(a.out, "Repeat password")
	again, err := readPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)

	if string(password) != string(again) {
		return errors.New("passwords do not match")
	}

	u, err := a.core.Accounts.Register(ctx, username, string(password), roles)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created user %s (%s) roles=%s\n", u.Username, u.ID, strings.Join(u.Roles, ","))
	return nil
}

func (a *App) setDisabled(ctx context.Context, username string, disabled bool) error {
	u, err := a.core.Repos.Users().FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return err
	}

	if !disabled {
		if err := a.core.Accounts.Enable(ctx, u.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "enabled %s\n", u.Username)
		return nil
	}

	n, err := a.core.Accounts.Disable(ctx, u.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "disabled %s, revoked %d refresh tokens\n", u.Username, n)
	return nil
}

func (a *App) revokeFamily(ctx context.Context, familyID string) error {
	n, err := a.core.Repos.RefreshTokens().RevokeFamily(ctx, familyID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "revoked %d tokens in family %s\n", n, familyID)
	return nil
}

func (a *App) inspect(ctx context.Context, familyID string) error {
	recs, err := a.core.Repos.RefreshTokens().Family(ctx, familyID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("family %s not found", familyID)
	}

	now := a.now()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tSTATE\tISSUED\tEXPIRES\tPREV\tREPLACED BY")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.UserID, r.State(now),
			r.IssuedAt.UTC().Format(time.RFC3339), r.ExpiresAt.UTC().Format(time.RFC3339),
			dash(r.PrevTokenID), dash(r.ReplacedByTokenID))
	}
	return tw.Flush()
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
