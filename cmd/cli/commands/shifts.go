package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/core/services"
)

// CreateShiftCmd creates the createShift command
func CreateShiftCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createShift <start> <end>",
		Short: "Create a shift (times as \"2006-01-02 15:04\")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := app.Cfg.Location()
			start, err := parseTime(args[0], loc)
			if err != nil {
				return err
			}
			end, err := parseTime(args[1], loc)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			facilityID, _ := flags.GetString("facility-id")
			facilityName, _ := flags.GetString("facility-name")
			place, _ := flags.GetString("place")
			contact, _ := flags.GetString("contact")
			taskID, _ := flags.GetString("task-id")
			taskName, _ := flags.GetString("task-name")
			workplaceID, _ := flags.GetString("workplace-id")
			workplaceName, _ := flags.GetString("workplace-name")
			slots, _ := flags.GetInt("slots")

			shift := &model.Shift{
				StartingTime: start,
				EndingTime:   end,
				Facility:     model.Facility{ID: facilityID, Name: facilityName, Place: place, ContactInfo: contact},
				Task:         model.Task{ID: taskID, Name: taskName},
				Workplace:    model.Workplace{ID: workplaceID, Name: workplaceName},
				Slots:        slots,
			}

			if err := services.CreateShift(app.Ctx, app.Database, app.Logger, shift); err != nil {
				return describeError(err)
			}

			fmt.Printf("\n✓ Shift created: %s\n", shift.ID)
			fmt.Printf("  %s\n\n", formatShift(*shift, loc))
			return nil
		},
	}

	cmd.Flags().String("facility-id", "", "Facility ID")
	cmd.Flags().String("facility-name", "", "Facility name")
	cmd.Flags().String("place", "", "Facility address")
	cmd.Flags().String("contact", "", "Facility contact details")
	cmd.Flags().String("task-id", "", "Task ID")
	cmd.Flags().String("task-name", "", "Task name")
	cmd.Flags().String("workplace-id", "", "Workplace ID (optional)")
	cmd.Flags().String("workplace-name", "", "Workplace name (optional)")
	cmd.Flags().Int("slots", 0, "Number of helpers needed (0 for unlimited)")

	return cmd
}

// CreateShiftSeriesCmd creates the createShiftSeries command
func CreateShiftSeriesCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "createShiftSeries <template> <from> <until>",
		Short: "Create the shifts of a configured shift template between two times",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := app.Cfg.ShiftTemplate(args[0])
			if err != nil {
				return err
			}

			loc := app.Cfg.Location()
			from, err := parseTime(args[1], loc)
			if err != nil {
				return err
			}
			until, err := parseTime(args[2], loc)
			if err != nil {
				return err
			}

			shifts, err := services.CreateShiftSeries(app.Ctx, app.Database, app.Logger, *tmpl, from, until)
			if len(shifts) > 0 {
				fmt.Printf("\n✓ Created %d shifts from %s:\n", len(shifts), tmpl.Name)
				for i, shift := range shifts {
					fmt.Printf("  %2d. %s  (%s)\n", i+1, formatShift(shift, loc), shift.ID)
				}
				fmt.Println()
			}
			if err != nil {
				return describeError(err)
			}
			if len(shifts) == 0 {
				fmt.Println("No occurrences in that range.")
			}
			return nil
		},
	}
}

// UpdateShiftCmd creates the updateShift command
func UpdateShiftCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updateShift <shift_id>",
		Short: "Change a shift's times or slots (helpers are told about material changes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shift, err := app.Database.GetShift(app.Ctx, args[0])
			if err != nil {
				return describeError(err)
			}

			loc := app.Cfg.Location()
			flags := cmd.Flags()
			if flags.Changed("start") {
				value, _ := flags.GetString("start")
				if shift.StartingTime, err = parseTime(value, loc); err != nil {
					return err
				}
			}
			if flags.Changed("end") {
				value, _ := flags.GetString("end")
				if shift.EndingTime, err = parseTime(value, loc); err != nil {
					return err
				}
			}
			if flags.Changed("slots") {
				shift.Slots, _ = flags.GetInt("slots")
			}

			if err := services.UpdateShift(app.Ctx, app.Database, app.Logger, shift); err != nil {
				return describeError(err)
			}

			fmt.Printf("\n✓ Shift updated: %s\n\n", formatShift(*shift, loc))
			return nil
		},
	}

	cmd.Flags().String("start", "", "New starting time")
	cmd.Flags().String("end", "", "New ending time")
	cmd.Flags().Int("slots", 0, "New number of helpers needed")

	return cmd
}

// DeleteShiftCmd creates the deleteShift command
func DeleteShiftCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deleteShift <shift_id>",
		Short: "Delete a shift (helpers of future shifts are told it was cancelled)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := services.DeleteShift(app.Ctx, app.Database, app.Logger, args[0]); err != nil {
				return describeError(err)
			}
			fmt.Printf("\n✓ Shift %s deleted\n\n", args[0])
			return nil
		},
	}
}

// ListShiftsCmd creates the listShifts command
func ListShiftsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listShifts",
		Short: "List upcoming shifts by facility",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			facilityID, _ := cmd.Flags().GetString("facility-id")

			shifts, err := services.ListUpcomingShifts(app.Ctx, app.Database, app.Logger, facilityID, app.Now())
			if err != nil {
				return describeError(err)
			}

			if len(shifts) == 0 {
				fmt.Println("No upcoming shifts.")
				return nil
			}

			loc := app.Cfg.Location()
			fmt.Printf("\n%d upcoming shifts:\n\n", len(shifts))
			for _, s := range shifts {
				fmt.Printf("  %s  [%s]  %s\n", formatShift(s.Shift, loc), slotsLabel(s), s.Shift.ID)
				if len(s.Helpers) > 0 {
					fmt.Printf("      helpers: %s\n", helperNames(s.Helpers))
				}
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().String("facility-id", "", "Only list shifts at this facility")

	return cmd
}
