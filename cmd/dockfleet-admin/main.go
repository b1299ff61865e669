// dockfleet-admin performs offline maintenance directly against the
// data directory: generating encryption keys and bootstrapping users
// before the server has any accounts to authenticate against.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/types"
)

var dataDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dockfleet-admin",
	Short: "Offline administration for a Dockfleet data directory",
	Long: `dockfleet-admin operates directly on the Dockfleet data directory,
bypassing the API. Use it to generate a credential encryption key and
to create the first admin user. Stop the server before running
commands that write to the store.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "/var/lib/dockfleet", "Dockfleet data directory")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRemoveCmd)

	userAddCmd.Flags().String("role", string(types.RoleViewer), "Global role: viewer, operator, admin")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a credential encryption key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		fmt.Println(base64.StdEncoding.EncodeToString(key))
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users in the store",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roleStr, _ := cmd.Flags().GetString("role")
		role := types.Role(roleStr)
		switch role {
		case types.RoleViewer, types.RoleOperator, types.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", roleStr)
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}
		if len(password) == 0 {
			return fmt.Errorf("password cannot be empty")
		}
		hash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		user := &types.User{
			ID:           uuid.NewString(),
			Username:     args[0],
			PasswordHash: hash,
			Role:         role,
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.CreateUser(user); err != nil {
			return err
		}
		fmt.Printf("User %s created (%s, %s)\n", user.Username, user.ID, user.Role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		users, err := store.ListUsers()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tCREATED")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				u.ID, u.Username, u.Role, u.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "rm <username>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := store.GetUserByUsername(args[0])
		if err != nil {
			return err
		}
		if err := store.DeleteUser(user.ID); err != nil {
			return err
		}
		fmt.Println("User deleted.")
		return nil
	},
}
