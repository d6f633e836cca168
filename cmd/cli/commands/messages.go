package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-planner/pkg/core/services"
)

// ShowMessageCmd creates the showMessage command
func ShowMessageCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "showMessage <message_id>",
		Short: "Show a broadcast message and who it went to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := app.Database.GetBroadcastMessage(app.Ctx, args[0])
			if err != nil {
				return describeError(err)
			}

			loc := app.Cfg.Location()
			fmt.Printf("\nMessage %s (shift %s)\n", message.ID, message.ShiftID)
			fmt.Printf("  From: %s <%s>\n", message.Sender.FullName(), message.Sender.Email)
			fmt.Printf("  Sent: %s\n", message.CreatedAt.In(loc).Format("Mon 02.01.2006 15:04"))
			fmt.Printf("  To:   %s\n\n", helperNames(message.Recipients))
			fmt.Printf("%s\n\n", message.Body)
			return nil
		},
	}
}

// EditMessageCmd creates the editMessage command
func EditMessageCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "editMessage <message_id> <message>",
		Short: "Correct the text of a saved broadcast (nothing is re-sent)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := services.EditBroadcast(app.Ctx, app.Database, app.Logger, args[0], args[1])
			if err != nil {
				return describeError(err)
			}

			fmt.Printf("\n✓ Message %s updated\n\n", message.ID)
			return nil
		},
	}
}
