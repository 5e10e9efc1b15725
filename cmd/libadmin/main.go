package main

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/logger"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var stdin = bufio.NewReader(os.Stdin)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "libadmin",
		Short:         "Operator tooling for the library backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.Load()
		},
	}
	root.AddCommand(newMigrateCmd(), newCreateAdminCmd(), newSeedBooksCmd())
	return root
}

// connect opens the database with the same configuration the server uses
func connect() (*sql.DB, *zap.Logger, error) {
	zapLogger, err := logger.New()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.InitDB(zapLogger)
	if err != nil {
		return nil, nil, err
	}
	return db, zapLogger, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, zapLogger, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()
			return database.RunMigrations(db, zapLogger)
		},
	}
}

func newCreateAdminCmd() *cobra.Command {
	var in services.AdminInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(fmt.Sprintf("Password for %s: ", in.Username))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			confirm, err := readPassword("Confirm password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}
			in.Password = password

			db, zapLogger, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			auth := services.NewAuthServiceWithStore(db, services.NewMemorySessionStore(), config.LoadLendingConfig(), zapLogger)
			id, err := auth.CreateAdmin(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created admin %q with ID %d\n", in.Username, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "login name")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&in.FullName, "name", "", "full name")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newSeedBooksCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-books",
		Short: "Import books from a CSV file (title,author,isbn,publisher,year,category,copies)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := services.ParseBookCSV(bufio.NewReader(f))
			if err != nil {
				return err
			}

			db, zapLogger, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			catalog := services.NewCatalogService(db, services.Trusted{}, zapLogger)
			report, err := catalog.ImportBooks(cmd.Context(), models.AdminIdentity(1), rows)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d books (%d new authors), skipped %d already catalogued\n",
				report.Created, report.AuthorsCreated, report.Skipped)
			for _, msg := range report.Errors {
				fmt.Fprintf(out, "  %s\n", msg)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "books.csv", "CSV file to import")
	return cmd
}

// readPassword reads a password without echo when stdin is a terminal
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if !term.IsTerminal(int(syscall.Stdin)) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}
