package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nodeadmin/backend/internal/models"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func userTable(out io.Writer, users []models.User) {
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tSTATE\tMAIL\t2FA\tLAST LOGIN")
	for _, u := range users {
		twoFactor := "-"
		if u.TwoFactorEnable {
			twoFactor = "on"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			displayName(&u), u.Role, u.State, u.Mail, twoFactor, lastLogin(&u))
	}
	w.Flush()
}

func userDetail(out io.Writer, u *models.User) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", u.ID)
	fmt.Fprintf(w, "Username:\t%s\n", displayName(u))
	fmt.Fprintf(w, "Role:\t%s\n", u.Role)
	fmt.Fprintf(w, "Mail:\t%s\n", u.Mail)
	fmt.Fprintf(w, "State:\t%s\n", u.State)
	if u.PGPKeyFingerprint != "" {
		fmt.Fprintf(w, "PGP Key:\t%s\n", u.PGPKeyFingerprint)
	}
	if u.PGPKeyExpiration != nil {
		fmt.Fprintf(w, "Key Expires:\t%s\n", u.PGPKeyExpiration.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Last Login:\t%s\n", lastLogin(u))
	w.Flush()
}

func displayName(u *models.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.Mail
}

func lastLogin(u *models.User) string {
	if u.LastLogin == nil {
		return "never"
	}
	return u.LastLogin.Format(time.RFC3339)
}
