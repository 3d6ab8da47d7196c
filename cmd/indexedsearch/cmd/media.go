package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
	"github.com/Aman-CERP/indexedsearch/internal/media"
	"github.com/Aman-CERP/indexedsearch/internal/output"
)

// entryFlags are the editable fields shared by add and update.
type entryFlags struct {
	title       string
	description string
	tags        []string
	state       string
	user        string
}

func (f *entryFlags) register(cmd *cobra.Command, defaultState string) {
	cmd.Flags().StringVar(&f.title, "title", "", "Entry title")
	cmd.Flags().StringVar(&f.description, "description", "", "Entry description")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Tag name (repeatable, order is kept)")
	cmd.Flags().StringVar(&f.state, "state", defaultState, "Processing state: unprocessed, processing, processed, failed")
	cmd.Flags().StringVar(&f.user, "user", "", "Owning username")
}

// apply copies the flags the user set onto e.
func (f *entryFlags) apply(cmd *cobra.Command, e *media.Entry) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		e.Title = f.title
	}
	if changed("description") {
		e.Description = f.description
	}
	if changed("tag") {
		e.Tags = make([]media.Tag, 0, len(f.tags))
		for _, t := range f.tags {
			e.Tags = append(e.Tags, media.Tag{Name: t})
		}
	}
	if changed("state") || e.State == "" {
		s := media.State(strings.ToLower(f.state))
		if !s.Valid() {
			return errors.ValidationError(fmt.Sprintf("invalid state %q", f.state), nil).
				WithSuggestion("use one of: unprocessed, processing, processed, failed")
		}
		e.State = s
	}
	if changed("user") {
		e.Actor = nil
		if f.user != "" {
			e.Actor = &media.Actor{Username: f.user}
		}
	}
	return nil
}

func newMediaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Change entries in the record store",
		Long: `Add, update and delete media entries and their comments. Each change is
applied to the search index by the change listener as soon as the record
store commits it.`,
	}

	cmd.AddCommand(newMediaAddCmd())
	cmd.AddCommand(newMediaUpdateCmd())
	cmd.AddCommand(newMediaDeleteCmd())
	cmd.AddCommand(newMediaCommentCmd())
	cmd.AddCommand(newMediaUncommentCmd())
	cmd.AddCommand(newMediaShowCmd())

	return cmd
}

func newMediaAddCmd() *cobra.Command {
	var f entryFlags
	var id uint64

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a media entry",
		Example: `  indexedsearch media add --title sunset --tag beach --tag evening --state processed
  indexedsearch media add --id 42 --title draft`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := &media.Entry{ID: id}
			if err := f.apply(cmd, e); err != nil {
				return err
			}
			return mutate(cmd, func(ctx context.Context, a *app) (string, error) {
				err := a.records.Insert(ctx, e)
				return fmt.Sprintf("Added media %d (%s)", e.ID, e.State), err
			})
		},
	}
	f.register(cmd, string(media.StateUnprocessed))
	cmd.Flags().Uint64Var(&id, "id", 0, "Explicit entry id (default: assigned by the store)")

	return cmd
}

func newMediaUpdateCmd() *cobra.Command {
	var f entryFlags

	cmd := &cobra.Command{
		Use:     "update <id>",
		Short:   "Update a media entry",
		Example: `  indexedsearch media update 42 --state processed --tag cat`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return mutate(cmd, func(ctx context.Context, a *app) (string, error) {
				e, err := a.records.FindByID(ctx, id)
				if err != nil {
					return "", err
				}
				if e == nil {
					return "", errors.New(errors.ErrCodeMediaNotFound, fmt.Sprintf("media %d not found", id), nil)
				}
				if err := f.apply(cmd, e); err != nil {
					return "", err
				}
				err = a.records.Update(ctx, e)
				return fmt.Sprintf("Updated media %d (%s)", e.ID, e.State), err
			})
		},
	}
	f.register(cmd, string(media.StateUnprocessed))

	return cmd
}

func newMediaDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a media entry with its tags and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return mutate(cmd, func(ctx context.Context, a *app) (string, error) {
				return fmt.Sprintf("Deleted media %d", id), a.records.Delete(ctx, id)
			})
		},
	}
}

func newMediaCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "comment <id> <text>",
		Short:   "Comment on a media entry",
		Example: `  indexedsearch media comment 42 "what a view"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			return mutate(cmd, func(ctx context.Context, a *app) (string, error) {
				c, err := a.records.AddComment(ctx, id, text)
				if c == nil {
					return "", err
				}
				return fmt.Sprintf("Added comment %d to media %d", c.ID, id), err
			})
		},
	}
}

func newMediaUncommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uncomment <comment-id>",
		Short: "Delete a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return mutate(cmd, func(ctx context.Context, a *app) (string, error) {
				return fmt.Sprintf("Deleted comment %d", id), a.records.DeleteComment(ctx, id)
			})
		},
	}
}

func newMediaShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a media entry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				e, err := a.records.FindByID(ctx, id)
				if err != nil {
					return err
				}
				if e == nil {
					return errors.New(errors.ErrCodeMediaNotFound, fmt.Sprintf("media %d not found", id), nil)
				}
				return output.New(cmd.OutOrStdout()).JSON(e)
			})
		},
	}
}

// mutate runs fn against the record store and reports the outcome. A
// change that committed but could not be indexed is a warning, since the
// next reconcile repairs it.
func mutate(cmd *cobra.Command, fn func(context.Context, *app) (string, error)) error {
	out := output.New(cmd.OutOrStdout())
	return withApp(cmd.Context(), func(a *app) error {
		msg, err := fn(cmd.Context(), a)
		if err != nil && errors.GetCode(err) != errors.ErrCodeEventDispatch {
			return err
		}
		out.Success(msg)
		if err != nil {
			out.Warningf("Index not updated: %v", err)
			out.Status("", "Run 'indexedsearch reconcile' to repair the index")
		}
		return nil
	})
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.ValidationError(fmt.Sprintf("invalid id %q", s), err)
	}
	return id, nil
}
