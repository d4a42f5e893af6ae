package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

func newCreateUserCmd() *cobra.Command {
	var email, password, role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedRole, err := models.ParseRole(role)
			if err != nil {
				return err
			}

			core, closePublisher, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closePublisher()

			user, err := core.Auth.Register(cmd.Context(), email, password, parsedRole)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d %s (%s)\n", user.ID, user.Email, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&password, "password", "", "user password")
	cmd.Flags().StringVar(&role, "role", string(models.RoleOperator), "tourist, operator, police or admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
