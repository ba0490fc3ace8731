package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/notify"
	"git.0xdad.com/tblyler/medibot/schedule"
)

var medicationCmd = &cobra.Command{
	Use:   "medication",
	Short: "Manage a user's medications",
}

var medicationAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a medication, prompting for its details",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBadger()
		if err != nil {
			return err
		}
		defer b.Close()

		inputScanner := bufio.NewScanner(os.Stdin)

		user, err := lookupUser(b, inputScanner)
		if err != nil {
			return err
		}

		name := prompt(inputScanner, "name")
		if name == "" {
			return fmt.Errorf("failed to get medication name from STDIN prompt: %w", inputScanner.Err())
		}

		dosage := prompt(inputScanner, "dosage")
		frequency := prompt(inputScanner, "frequency")

		var reminderTimes []string
		for _, value := range strings.Split(prompt(inputScanner, "reminder times (HH:MM, comma separated)"), ",") {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}

			at, err := schedule.ParseClockTime(value)
			if err != nil {
				return err
			}

			reminderTimes = append(reminderTimes, at.String())
		}

		now := time.Now()
		medication := &db.Medication{
			IDUser:        user.ID,
			ID:            uuid.New(),
			Name:          name,
			Dosage:        dosage,
			Frequency:     frequency,
			StartDate:     now,
			ReminderTimes: reminderTimes,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := b.AddMedication(medication); err != nil {
			return err
		}

		fmt.Println("created medication id", medication.ID)

		return nil
	},
}

var medicationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's medications",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBadger()
		if err != nil {
			return err
		}
		defer b.Close()

		user, err := lookupUser(b, bufio.NewScanner(os.Stdin))
		if err != nil {
			return err
		}

		medications, err := b.ListMedicationsForUser(user)
		if err != nil {
			return err
		}

		for _, medication := range medications {
			fmt.Printf("%s\t%s\t%s\t%s\tactive=%t\n",
				medication.ID,
				medication.Name,
				medication.Dosage,
				strings.Join(medication.ReminderTimes, ","),
				medication.Active,
			)
		}

		return nil
	},
}

var medicationRemoveCmd = &cobra.Command{
	Use:   "remove MEDICATION_ID",
	Short: "Remove one of a user's medications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		medicationID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid medication id %s: %w", args[0], err)
		}

		b, err := openBadger()
		if err != nil {
			return err
		}
		defer b.Close()

		user, err := lookupUser(b, bufio.NewScanner(os.Stdin))
		if err != nil {
			return err
		}

		medication, err := b.GetMedication(user.ID, medicationID)
		if err != nil {
			return err
		}

		if err := b.RemoveMedication(medication); err != nil {
			return err
		}

		// server-side copies of its reminders go with it
		if _, err := b.DeleteScheduledReminders(medication.ID.String()); err != nil {
			return err
		}

		fmt.Println("removed medication", medication.Name)

		return nil
	},
}

var medicationTestCmd = &cobra.Command{
	Use:   "test MEDICATION_ID",
	Short: "Send a test reminder for one of a user's medications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		medicationID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid medication id %s: %w", args[0], err)
		}

		b, err := openBadger()
		if err != nil {
			return err
		}
		defer b.Close()

		user, err := lookupUser(b, bufio.NewScanner(os.Stdin))
		if err != nil {
			return err
		}

		medication, err := b.GetMedication(user.ID, medicationID)
		if err != nil {
			return err
		}

		dispatcher := serverDispatcher(b, nil)

		n := notify.Reminder(user.ID.String(), user.Email, medication.Name, medication.Dosage)
		n.Kind = notify.KindTest

		result := dispatcher.Dispatch(context.Background(), n)
		if err := result.Err(); err != nil {
			if result.Failed() {
				return err
			}

			fmt.Println("partly delivered:", err)

			return nil
		}

		fmt.Println("test reminder sent")

		return nil
	},
}

func init() {
	medicationCmd.AddCommand(medicationAddCmd)
	medicationCmd.AddCommand(medicationListCmd)
	medicationCmd.AddCommand(medicationRemoveCmd)
	medicationCmd.AddCommand(medicationTestCmd)
}
