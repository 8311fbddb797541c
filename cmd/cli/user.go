package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/invoicer/internal/application/dto"
	"github.com/turtacn/invoicer/internal/application/service"
	"github.com/turtacn/invoicer/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/invoicer/pkg/utils"
)

func newUserCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user:create",
		Short: "Create an active user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &dto.CreateUserRequest{}
			req.Email, _ = cmd.Flags().GetString("email")
			req.Name, _ = cmd.Flags().GetString("name")
			req.Password, _ = cmd.Flags().GetString("password")
			if err := utils.ValidateStruct(req); err != nil {
				return fmt.Errorf("invalid user: %v", utils.ValidationDetails(err))
			}

			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := postgres.NewDBConnection(ctx, &env.cfg.Database, env.log)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}

			users := service.NewUserAppService(postgres.NewUserRepository(db.DB(), env.log), 0, env.log)
			user, err := users.Register(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s <%s>.\n", user.ID, user.Email)
			return nil
		},
	}
	cmd.Flags().String("email", "", "login email")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("password", "", "initial password")
	return cmd
}
