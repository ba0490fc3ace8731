package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"git.0xdad.com/tblyler/medibot/config"
	"git.0xdad.com/tblyler/medibot/db"
	"git.0xdad.com/tblyler/medibot/log"
)

var (
	dotEnvFile string
	env        *config.Env
)

var rootCmd = &cobra.Command{
	Use:           "medibot",
	Short:         "MediBot medication reminders",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		env, err = config.NewEnv(dotEnvFile)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(env.LogLevel()),
			JSONOutput: env.LogJSON(),
			Output:     os.Stderr,
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dotEnvFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(medicationCmd)
}

func openBadger() (*db.Badger, error) {
	badgerPath, err := env.BadgerPath()
	if err != nil {
		return nil, err
	}

	return db.NewBadger(badgerPath)
}

// prompt reads one trimmed line from the scanner
func prompt(inputScanner *bufio.Scanner, label string) string {
	fmt.Print(label + ": ")
	inputScanner.Scan()

	return string(bytes.TrimSpace(inputScanner.Bytes()))
}

func lookupUser(b *db.Badger, inputScanner *bufio.Scanner) (*db.User, error) {
	username := prompt(inputScanner, "username")
	if username == "" {
		return nil, fmt.Errorf("failed to get username from STDIN prompt: %w", inputScanner.Err())
	}

	user, err := b.GetUser(username)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup username %s: %w", username, err)
	}

	return user, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
