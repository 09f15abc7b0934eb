package cmd

import (
	"errors"
	"strings"

	"github.com/spigell/resume-screener/internal/screening"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const cliRole = "cli"

// addUserFlag registers --user on cmd. SCREENER_USER is used when the flag is
// not given.
func addUserFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "owner id the command acts for (env SCREENER_USER)")
}

func cliPrincipal(cmd *cobra.Command) (screening.Principal, error) {
	user, _ := cmd.Flags().GetString("user")
	if strings.TrimSpace(user) == "" {
		user = viper.GetString("user")
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return screening.Principal{}, errors.New("owner id is required (--user or SCREENER_USER)")
	}

	return screening.Principal{
		OwnerID:   user,
		Role:      cliRole,
		UserAgent: app + "/" + version,
	}, nil
}
