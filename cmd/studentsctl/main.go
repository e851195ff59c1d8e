// Command studentsctl is a command line client of the students service.
//
//	studentsctl register --username john --email john@example.com --password secret123
//	studentsctl login --email john@example.com --password secret123
//	studentsctl students add --name "John Smith" --email john@example.com --age 20 --course math
//	studentsctl students list
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/patric-chuzhbe/students/internal/client"
	"github.com/patric-chuzhbe/students/internal/models"
)

type globalFlags struct {
	server      string
	sessionPath string
	timeout     time.Duration
}

func main() {
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "studentsctl",
		Short:         "Command line client of the students service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.server, "server", "s", "", "Server URL (default: the session's server or http://127.0.0.1:8000)")
	rootCmd.PersistentFlags().StringVar(&flags.sessionPath, "session", defaultSessionPath(), "Session file")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		newHealthCmd(flags),
		newRegisterCmd(flags),
		newLoginCmd(flags),
		newRefreshCmd(flags),
		newLogoutCmd(flags),
		newStudentsCmd(flags),
	)

	return rootCmd
}

// connect builds a client from the flags and the saved session.
func connect(flags *globalFlags) (*client.Client, *session, error) {
	s, err := loadSession(flags.sessionPath)
	if err != nil {
		return nil, nil, err
	}

	server := flags.server
	if server == "" {
		server = s.Server
	}
	if server == "" {
		server = "http://127.0.0.1:8000"
	}
	if server != s.Server {
		s = &session{Server: server}
	}

	c, err := client.New(server, client.WithTimeout(flags.timeout), client.WithTokens(s.Access, s.Refresh))
	if err != nil {
		return nil, nil, err
	}

	return c, s, nil
}

func storeTokens(flags *globalFlags, c *client.Client, s *session) error {
	s.Access, s.Refresh = c.Tokens()

	return saveSession(flags.sessionPath, s)
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func parseID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid student id %q: %w", arg, err)
	}

	return id, nil
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(flags)
			if err != nil {
				return err
			}
			if err := c.HealthCheck(cmd.Context()); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}

func newRegisterCmd(flags *globalFlags) *cobra.Command {
	payload := models.RegisterUser{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(flags)
			if err != nil {
				return err
			}

			user, err := c.Register(cmd.Context(), payload)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), user)
		},
	}

	cmd.Flags().StringVarP(&payload.Username, "username", "u", "", "User name")
	cmd.Flags().StringVarP(&payload.Email, "email", "e", "", "E-mail")
	cmd.Flags().StringVarP(&payload.Password, "password", "p", "", "Password")
	for _, name := range []string{"username", "email", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newLoginCmd(flags *globalFlags) *cobra.Command {
	payload := models.LoginUser{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := connect(flags)
			if err != nil {
				return err
			}

			if _, err := c.Login(cmd.Context(), payload); err != nil {
				return err
			}
			if err := storeTokens(flags, c, s); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			return err
		},
	}

	cmd.Flags().StringVarP(&payload.Email, "email", "e", "", "E-mail")
	cmd.Flags().StringVarP(&payload.Password, "password", "p", "", "Password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newRefreshCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Replace the access token of the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := connect(flags)
			if err != nil {
				return err
			}

			if _, err := c.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := storeTokens(flags, c, s); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "refreshed")
			return err
		},
	}
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, s, err := connect(flags)
			if err != nil {
				return err
			}

			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			if err := storeTokens(flags, c, s); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return err
		},
	}
}

func newStudentsCmd(flags *globalFlags) *cobra.Command {
	studentsCmd := &cobra.Command{
		Use:   "students",
		Short: "Manage students",
	}

	studentsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all students",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
					return c.GetStudents(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one student",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withClient(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
					return c.GetStudent(ctx, id)
				})
			},
		},
		&cobra.Command{
			Use:   "avatar <id>",
			Short: "Show the avatar URL of a student",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withClient(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
					return c.GetAvatar(ctx, id)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Remove a student",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return withClient(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
					return c.DeleteStudent(ctx, id)
				})
			},
		},
		newStudentsAddCmd(flags),
		newStudentsChangeCmd(flags),
	)

	return studentsCmd
}

func newStudentsAddCmd(flags *globalFlags) *cobra.Command {
	payload := models.AddStudent{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if payload.Courses == nil {
				payload.Courses = []string{}
			}
			return withClient(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				return c.AddStudent(ctx, payload)
			})
		},
	}

	cmd.Flags().StringVarP(&payload.FullName, "name", "n", "", "Full name, e.g. \"John Smith\"")
	cmd.Flags().StringVarP(&payload.Email, "email", "e", "", "E-mail")
	cmd.Flags().IntVarP(&payload.Age, "age", "a", 0, "Age")
	cmd.Flags().StringSliceVarP(&payload.Courses, "course", "c", nil, "Course, repeatable")
	for _, name := range []string{"name", "email", "age"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newStudentsChangeCmd(flags *globalFlags) *cobra.Command {
	payload := models.EditStudent{}

	cmd := &cobra.Command{
		Use:   "change <id>",
		Short: "Replace the e-mail, the age and the courses of a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if payload.Courses == nil {
				payload.Courses = []string{}
			}
			return withClient(cmd, flags, func(ctx context.Context, c *client.Client) (any, error) {
				return c.ChangeStudent(ctx, id, payload)
			})
		},
	}

	cmd.Flags().StringVarP(&payload.Email, "email", "e", "", "E-mail")
	cmd.Flags().IntVarP(&payload.Age, "age", "a", 0, "Age")
	cmd.Flags().StringSliceVarP(&payload.Courses, "course", "c", nil, "Course, repeatable")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("age")

	return cmd
}

// withClient runs call with a session client and prints its result as JSON.
func withClient(
	cmd *cobra.Command,
	flags *globalFlags,
	call func(ctx context.Context, c *client.Client) (any, error),
) error {
	c, _, err := connect(flags)
	if err != nil {
		return err
	}

	result, err := call(cmd.Context(), c)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), result)
}
