package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
	"github.com/spf13/cobra"
)

var errSessionNotFound = errors.New("session not found")

// sessionView is the YAML rendering of one session.
type sessionView struct {
	ID        string         `yaml:"id"`
	Location  string         `yaml:"location,omitempty"`
	Timestamp int64          `yaml:"timestamp"`
	Data      map[string]any `yaml:"data"`
}

func viewOf(sess *session.Session, loc session.Location) sessionView {
	v := sessionView{
		ID:        sess.ID(),
		Timestamp: sess.Timestamp(),
		Data:      sess.Data(),
	}
	if loc != session.LocationAbsent {
		v.Location = loc.String()
	}
	return v
}

// lookup returns the live session under id without minting a replacement.
func lookup(ctx context.Context, engine *goSession.Engine, id string) (*session.Session, error) {
	if _, found, err := engine.Peek(ctx, id); err != nil {
		return nil, err
	} else if !found {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	sess, err := engine.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.ID() != id {
		return nil, fmt.Errorf("%w: %s expired", errSessionNotFound, id)
	}
	return sess, nil
}

func newCreateCmd(opts *globalOptions) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseData(data)
			if err != nil {
				return err
			}
			return opts.withEngine(func(engine *goSession.Engine) error {
				sess, err := engine.Create(cmd.Context(), values)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), sess.ID())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "initial data as a YAML or JSON mapping")
	return cmd
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	var touch bool

	cmd := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Print a session",
		Long: `Print a session's id, location, timestamp, and data as YAML.

By default the session is read without re-stamping it. With --touch it is resolved the
way a request would resolve it: re-stamped, or replaced when it has expired.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withEngine(func(engine *goSession.Engine) error {
				loc, err := engine.StorageLocation(ctx, args[0])
				if err != nil {
					return err
				}

				var sess *session.Session
				if touch {
					sess, err = lookup(ctx, engine, args[0])
				} else {
					var found bool
					sess, found, err = engine.Peek(ctx, args[0])
					if err == nil && !found {
						err = fmt.Errorf("%w: %s", errSessionNotFound, args[0])
					}
				}
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), viewOf(sess, loc))
			})
		},
	}
	cmd.Flags().BoolVar(&touch, "touch", false, "resolve and re-stamp the session")
	return cmd
}

func newSetCmd(opts *globalOptions) *cobra.Command {
	var (
		data    string
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "set <session-id> [key value]",
		Short: "Change session data",
		Long: `Set one key to a YAML value, or merge a mapping given with --data.

An unknown or expired id is replaced by a new session; the id printed is the one
holding the data.`,
		Example: `  sessionctl set $ID user '{name: ada, roles: [admin]}'
  sessionctl set $ID --data '{cart: {items: 3}}'
  sessionctl set $ID --replace --data '{fresh: true}'`,
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 3 && data == "":
				return nil
			case len(args) == 1 && data != "":
				return nil
			default:
				return errors.New("expected <session-id> <key> <value>, or <session-id> with --data")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var values map[string]any
			if data != "" {
				parsed, err := parseData(data)
				if err != nil {
					return err
				}
				values = parsed
			} else {
				value, err := parseValue(args[2])
				if err != nil {
					return err
				}
				values = map[string]any{args[1]: value}
			}

			return opts.withEngine(func(engine *goSession.Engine) error {
				sess, err := engine.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				if err := engine.SetData(ctx, sess, values, !replace); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), sess.ID())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "mapping to merge into the session data")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the data instead of merging")
	return cmd
}

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <session-id> <key>...",
		Short: "Remove keys from a session",
		Long:  `Remove top-level keys. Removing the last key deletes the session.`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withEngine(func(engine *goSession.Engine) error {
				sess, err := lookup(ctx, engine, args[0])
				if err != nil {
					return err
				}
				keys := append([]string(nil), args[1:]...)
				sort.Strings(keys)
				for _, key := range keys {
					if !sess.Attached() {
						break
					}
					if err := engine.Remove(ctx, sess, key); err != nil {
						return err
					}
				}
				if !sess.Attached() {
					fmt.Fprintf(cmd.OutOrStdout(), "session %s emptied and deleted\n", args[0])
					return nil
				}
				return writeYAML(cmd.OutOrStdout(), viewOf(sess, session.LocationAbsent))
			})
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withEngine(func(engine *goSession.Engine) error {
				var errs []error
				for _, id := range args {
					sess, found, err := engine.Peek(ctx, id)
					if err == nil && !found {
						err = fmt.Errorf("%w: %s", errSessionNotFound, id)
					}
					if err == nil {
						err = engine.Delete(ctx, sess)
					}
					if err != nil {
						errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newWhereCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "where <session-id>",
		Short: "Print which tier holds a session id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(func(engine *goSession.Engine) error {
				loc, err := engine.StorageLocation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), loc.String())
				return nil
			})
		},
	}
}

func newCSRFCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csrf",
		Short: "Issue and validate one-time CSRF tokens",
	}

	issue := &cobra.Command{
		Use:   "issue <session-id>",
		Short: "Issue a token for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withEngine(func(engine *goSession.Engine) error {
				sess, err := lookup(ctx, engine, args[0])
				if err != nil {
					return err
				}
				token, err := engine.IssueCSRF(ctx, sess)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}

	validate := &cobra.Command{
		Use:   "validate <session-id> <token>",
		Short: "Validate and consume a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withEngine(func(engine *goSession.Engine) error {
				sess, err := lookup(ctx, engine, args[0])
				if err != nil {
					return err
				}
				ok, err := engine.ValidateCSRF(ctx, sess, args[1])
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("csrf token rejected")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			})
		},
	}

	cmd.AddCommand(issue, validate)
	return cmd
}
