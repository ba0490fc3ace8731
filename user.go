package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/notify"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user, prompting for its details",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBadger()
		if err != nil {
			return err
		}
		defer b.Close()

		inputScanner := bufio.NewScanner(os.Stdin)

		username := prompt(inputScanner, "username")
		if username == "" {
			return fmt.Errorf("failed to get username from STDIN prompt: %w", inputScanner.Err())
		}

		email := prompt(inputScanner, "email")
		if email != "" {
			if err := notify.ValidateEmail(email); err != nil {
				return err
			}
		}

		plan := prompt(inputScanner, "plan (base/premium)")
		switch plan {
		case "":
			plan = db.PlanPremium
		case db.PlanBase, db.PlanPremium:
		default:
			return fmt.Errorf("unknown plan %s", plan)
		}

		deviceToken := prompt(inputScanner, "pushover user key")
		if deviceToken == "" {
			return fmt.Errorf("no pushover user key provided: %w", inputScanner.Err())
		}

		id := uuid.New()

		err = b.AddUser(&db.User{
			ID:    id,
			Name:  username,
			Email: email,
			Plan:  plan,
			PushoverDeviceTokens: map[string]string{
				db.DefaultPushoverDevice: deviceToken,
			},
			CreatedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to insert username %s: %w", username, err)
		}

		fmt.Println("created user id", id)

		return nil
	},
}

var userUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change a user's email, plan or pushover user key; empty answers keep the current value",
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

		if email := prompt(inputScanner, "email ("+user.Email+")"); email != "" {
			if err := notify.ValidateEmail(email); err != nil {
				return err
			}

			user.Email = email
		}

		switch plan := prompt(inputScanner, "plan ("+user.Plan+")"); plan {
		case "":
		case db.PlanBase, db.PlanPremium:
			user.Plan = plan
		default:
			return fmt.Errorf("unknown plan %s", plan)
		}

		if deviceToken := prompt(inputScanner, "pushover user key"); deviceToken != "" {
			if user.PushoverDeviceTokens == nil {
				user.PushoverDeviceTokens = make(map[string]string)
			}

			user.PushoverDeviceTokens[db.DefaultPushoverDevice] = deviceToken
		}

		if err := b.UpdateUser(user); err != nil {
			return fmt.Errorf("failed to update username %s: %w", user.Name, err)
		}

		fmt.Println("updated user id", user.ID)

		return nil
	},
}

var userGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show a user",
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

		fmt.Printf("%+v\n", *user)

		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every user",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBadger()
		if err != nil {
			return err
		}
		defer b.Close()

		users, err := b.ListUsers()
		if err != nil {
			return err
		}

		for _, user := range users {
			fmt.Printf("%s\t%s\t%s\t%s\n", user.ID, user.Name, user.Email, user.Plan)
		}

		return nil
	},
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userUpdateCmd)
	userCmd.AddCommand(userGetCmd)
	userCmd.AddCommand(userListCmd)
}
