package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/dockfleet/dockfleet/pkg/client"
	"github.com/dockfleet/dockfleet/pkg/types"
)

var (
	serverURL  string
	targetHost string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("DOCKFLEET_SERVER", "http://127.0.0.1:8400"), "Dockfleet server URL")
	rootCmd.PersistentFlags().StringVar(&targetHost, "host", "", "Target host id (defaults to the fleet default host)")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func tokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dockfleet", "token")
}

func savedToken() string {
	if v := os.Getenv("DOCKFLEET_TOKEN"); v != "" {
		return v
	}
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveToken(token string) error {
	path := tokenPath()
	if path == "" {
		return fmt.Errorf("cannot resolve home directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0600)
}

func newClient() *apiclient.Client {
	return apiclient.New(serverURL, savedToken())
}

// Login

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Authenticate and store a bearer token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		var username string
		if len(args) == 1 {
			username = args[0]
		} else {
			fmt.Print("Username: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			username = strings.TrimSpace(line)
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}

		token, err := newClient().Login(context.Background(), username, string(password))
		if err != nil {
			return err
		}
		if err := saveToken(token); err != nil {
			return err
		}
		fmt.Println("Login succeeded.")
		return nil
	},
}

// Hosts

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage fleet hosts",
}

var hostListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts, err := newClient().ListHosts(context.Background())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tKIND\tENDPOINT\tACTIVE\tHEALTH\tDEFAULT")
		for _, h := range hosts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%t\n",
				h.ID, h.Name, h.Kind, h.Endpoint, h.Active, h.Health, h.Default)
		}
		return w.Flush()
	},
}

var hostAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		endpoint, _ := cmd.Flags().GetString("endpoint")
		isDefault, _ := cmd.Flags().GetBool("default")
		credFiles, _ := cmd.Flags().GetStringToString("cred")

		creds := make(map[types.CredentialKind][]byte, len(credFiles))
		for kind, path := range credFiles {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read credential %s: %w", kind, err)
			}
			creds[types.CredentialKind(kind)] = data
		}

		host, err := newClient().CreateHost(context.Background(), &apiclient.HostRequest{
			Name:        args[0],
			Kind:        types.ConnectionKind(kind),
			Endpoint:    endpoint,
			Default:     isDefault,
			Credentials: creds,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Host %s registered (%s)\n", host.Name, host.ID)
		return nil
	},
}

var hostRemoveCmd = &cobra.Command{
	Use:   "rm <host-id>",
	Short: "Delete a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteHost(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("Host deleted.")
		return nil
	},
}

var hostTestCmd = &cobra.Command{
	Use:   "test <host-id>",
	Short: "Dial a host and report its engine version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := newClient().TestHost(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Engine version: %s\n", version)
		return nil
	},
}

var hostBreakerCmd = &cobra.Command{
	Use:   "breaker <host-id>",
	Short: "Show a host's circuit breaker state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := newClient().BreakerSnapshot(context.Background(), args[0])
		if err != nil {
			return err
		}
		for k, v := range snap {
			fmt.Printf("%s: %v\n", k, v)
		}
		return nil
	},
}

var hostBreakerResetCmd = &cobra.Command{
	Use:   "breaker-reset <host-id>",
	Short: "Manually close a host's circuit breaker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().ResetBreaker(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("Breaker reset.")
		return nil
	},
}

func init() {
	hostAddCmd.Flags().String("kind", "unix_socket", "Connection kind: unix_socket, tcp_plain, tcp_tls, ssh")
	hostAddCmd.Flags().String("endpoint", "", "Engine endpoint (socket path, tcp://host:port, ssh://user@host)")
	hostAddCmd.Flags().Bool("default", false, "Make this the fleet default host")
	hostAddCmd.Flags().StringToString("cred", nil, "Credential file by kind, e.g. --cred tls_ca=ca.pem")

	hostCmd.AddCommand(hostListCmd)
	hostCmd.AddCommand(hostAddCmd)
	hostCmd.AddCommand(hostRemoveCmd)
	hostCmd.AddCommand(hostTestCmd)
	hostCmd.AddCommand(hostBreakerCmd)
	hostCmd.AddCommand(hostBreakerResetCmd)
}

// Containers

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Manage containers on a host",
}

var containerListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		containers, err := newClient().ListContainers(context.Background(), targetHost, all)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tIMAGE\tSTATE\tSTATUS")
		for _, c := range containers {
			id := c.ID
			if len(id) > 12 {
				id = id[:12]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, c.Name, c.Image, c.State, c.Status)
		}
		return w.Flush()
	},
}

var containerStartCmd = &cobra.Command{
	Use:   "start <container-id>",
	Short: "Start a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().StartContainer(context.Background(), targetHost, args[0])
	},
}

var containerStopCmd = &cobra.Command{
	Use:   "stop <container-id>",
	Short: "Stop a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().StopContainer(context.Background(), targetHost, args[0], nil)
	},
}

var containerRestartCmd = &cobra.Command{
	Use:   "restart <container-id>",
	Short: "Restart a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().RestartContainer(context.Background(), targetHost, args[0])
	},
}

var containerRemoveCmd = &cobra.Command{
	Use:   "rm <container-id>",
	Short: "Remove a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return newClient().RemoveContainer(context.Background(), targetHost, args[0], force)
	},
}

var containerLogsCmd = &cobra.Command{
	Use:   "logs <container-id>",
	Short: "Follow a container's log stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		return newClient().StreamLogs(cmd.Context(), targetHost, args[0], tail, func(frame *types.Frame) error {
			if line := apiclient.FormatFrame(frame); line != "" {
				fmt.Println(line)
			}
			return nil
		})
	},
}

var containerStatsCmd = &cobra.Command{
	Use:   "stats <container-id>",
	Short: "Follow a container's resource stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().StreamStats(cmd.Context(), targetHost, args[0], func(frame *types.Frame) error {
			if line := apiclient.FormatFrame(frame); line != "" {
				fmt.Println(line)
			}
			return nil
		})
	},
}

func init() {
	containerListCmd.Flags().BoolP("all", "a", false, "Include stopped containers")
	containerRemoveCmd.Flags().BoolP("force", "f", false, "Force removal of a running container")
	containerLogsCmd.Flags().Int("tail", 100, "Number of buffered lines to replay")

	containerCmd.AddCommand(containerListCmd)
	containerCmd.AddCommand(containerStartCmd)
	containerCmd.AddCommand(containerStopCmd)
	containerCmd.AddCommand(containerRestartCmd)
	containerCmd.AddCommand(containerRemoveCmd)
	containerCmd.AddCommand(containerLogsCmd)
	containerCmd.AddCommand(containerStatsCmd)
}

// Grants

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Manage per-host permission grants",
}

var grantAddCmd = &cobra.Command{
	Use:   "add <user-id> <host-id> <level>",
	Short: "Grant a user a permission level on a host",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := newClient().PutGrant(context.Background(), &types.Grant{
			UserID: args[0],
			HostID: args[1],
			Level:  types.Role(args[2]),
		})
		if err != nil {
			return err
		}
		fmt.Println("Grant written.")
		return nil
	},
}

var grantRemoveCmd = &cobra.Command{
	Use:   "rm <user-id> <host-id>",
	Short: "Revoke a user's grant on a host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteGrant(context.Background(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Grant revoked.")
		return nil
	},
}

func init() {
	grantCmd.AddCommand(grantAddCmd)
	grantCmd.AddCommand(grantRemoveCmd)
}

// Events

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow a host's engine events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().StreamEvents(cmd.Context(), targetHost, func(frame *types.Frame) error {
			if line := apiclient.FormatFrame(frame); line != "" {
				fmt.Println(line)
			}
			return nil
		})
	},
}
