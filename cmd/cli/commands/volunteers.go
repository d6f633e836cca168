package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/core/services"
)

// AddVolunteerCmd creates the addVolunteer command
func AddVolunteerCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "addVolunteer <first_name> <last_name> [email]",
		Short: "Create a volunteer account",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			volunteer := &model.Volunteer{FirstName: args[0], LastName: args[1]}
			if len(args) > 2 {
				volunteer.Email = args[2]
			}

			if err := services.AddVolunteer(app.Ctx, app.Database, app.Logger, volunteer); err != nil {
				return err
			}

			fmt.Printf("\n✓ Volunteer %s created: %s\n\n", volunteer.FullName(), volunteer.ID)
			return nil
		},
	}
}

// JoinShiftCmd creates the joinShift command
func JoinShiftCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "joinShift <volunteer_id> <shift_id>",
		Short: "Register a volunteer for a shift",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := services.JoinShift(app.Ctx, app.Database, app.Logger, args[0], args[1])
			if err != nil {
				return describeError(err)
			}

			if result.AlreadyJoined {
				fmt.Println("\nVolunteer is already on this shift.")
				return nil
			}
			fmt.Printf("\n✓ Joined shift (registration %s)\n\n", result.Registration.ID)
			return nil
		},
	}
}

// LeaveShiftCmd creates the leaveShift command
func LeaveShiftCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "leaveShift <volunteer_id> <shift_id>",
		Short: "Remove a volunteer from a shift",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := services.LeaveShift(app.Ctx, app.Database, app.Logger, args[0], args[1])
			if err != nil {
				return describeError(err)
			}

			if !result.Removed {
				fmt.Println("\nVolunteer was not on this shift.")
				return nil
			}
			fmt.Println("\n✓ Left shift")
			return nil
		},
	}
}

// MyShiftsCmd creates the myShifts command
func MyShiftsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "myShifts <volunteer_id>",
		Short: "List the shifts a volunteer has joined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := services.MyShifts(app.Ctx, app.Database, app.Logger, args[0], app.Now())
			if err != nil {
				return describeError(err)
			}

			loc := app.Cfg.Location()
			fmt.Printf("\n%s (%d shifts)\n", result.Volunteer.FullName(), result.Volunteer.ShiftCount)

			fmt.Printf("\nUpcoming:\n")
			if len(result.Upcoming) == 0 {
				fmt.Println("  none")
			}
			for _, shift := range result.Upcoming {
				fmt.Printf("  %s\n", formatShift(shift, loc))
			}

			if len(result.Past) > 0 {
				fmt.Printf("\nPast:\n")
				for _, shift := range result.Past {
					fmt.Printf("  %s\n", formatShift(shift, loc))
				}
			}
			fmt.Println()
			return nil
		},
	}
}

// BroadcastCmd creates the broadcast command
func BroadcastCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast <shift_id> <sender_id> <message>",
		Short: "Email a message to everyone on a shift",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := services.SendBroadcast(app.Ctx, app.Database, app.Logger, args[0], args[1], args[2])
			if err != nil {
				return describeError(err)
			}

			fmt.Printf("\n✓ Message %s saved for %d helpers\n\n", message.ID, len(message.Recipients))
			return nil
		},
	}
}

// MigrateCmd creates the migrate command
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Migrator == nil {
				fmt.Println("The configured store has no schema to migrate.")
				return nil
			}
			if err := app.Migrator.RunMigrations(app.Ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Println("\n✓ Migrations applied")
			return nil
		},
	}
}
