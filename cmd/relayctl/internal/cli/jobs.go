package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"thirdcoast.systems/relay/pkg/utils/format"
)

var errOwnerRequired = errors.New("an owner is required: pass --owner or set RELAY_OWNER")

func (o *options) owner() (string, error) {
	owner := o.v.GetString("owner")
	if owner == "" {
		return "", errOwnerRequired
	}
	return owner, nil
}

func printJob(w io.Writer, j *Job) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "job\t%s\n", j.ID)
	if j.Outcome != "" {
		fmt.Fprintf(tw, "outcome\t%s\n", j.Outcome)
	}
	fmt.Fprintf(tw, "state\t%s\n", j.State)
	fmt.Fprintf(tw, "progress\t%s %d%%\n", format.Bar(j.Progress, 20), j.Progress)
	if j.Title != "" {
		fmt.Fprintf(tw, "title\t%s\n", j.Title)
	}
	fmt.Fprintf(tw, "source\t%s\n", j.SourceURL)
	fmt.Fprintf(tw, "profile\t%s\n", j.Profile)
	if j.Attempts > 0 {
		fmt.Fprintf(tw, "attempts\t%d\n", j.Attempts)
	}
	if j.ResultRef != nil {
		fmt.Fprintf(tw, "artifact\t%s\n", j.ResultRef)
	}
	if j.ErrorCode != "" {
		fmt.Fprintf(tw, "error\t%s: %s\n", j.ErrorCode, j.ErrorMessage)
	}
	fmt.Fprintf(tw, "created\t%s\n", humanize.Time(j.CreatedAt))
	if j.StartedAt != nil && j.FinishedAt != nil {
		fmt.Fprintf(tw, "took\t%s\n", format.Elapsed(j.FinishedAt.Sub(*j.StartedAt)))
	}
	tw.Flush()
}

func submitCmd(o *options) *cobra.Command {
	var (
		profile string
		wait    bool
		poll    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Request a media URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := o.owner()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			job, err := o.client.Submit(ctx, owner, args[0], profile)
			if err != nil {
				return err
			}
			if !wait || job.State.Terminal() {
				printJob(cmd.OutOrStdout(), job)
				return nil
			}

			outcome := job.Outcome
			ticker := time.NewTicker(poll)
			defer ticker.Stop()
			last := -1
			for !job.State.Terminal() {
				if job.Progress != last {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %3d%%\n", job.State, format.Bar(job.Progress, 30), job.Progress)
					last = job.Progress
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
				if job, err = o.client.Job(ctx, job.ID.String()); err != nil {
					return err
				}
			}
			job.Outcome = outcome
			printJob(cmd.OutOrStdout(), job)
			if job.ErrorCode != "" {
				return fmt.Errorf("job %s: %s", job.State, job.ErrorCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "best", "rendition: best, audio or <height>p")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "poll interval for --wait")
	return cmd
}

func statusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := o.client.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

func listCmd(o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the owner's jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := o.owner()
			if err != nil {
				return err
			}
			jobs, err := o.client.Jobs(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No jobs for %s\n", owner)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tPROGRESS\tCREATED\tTITLE")
			for _, j := range jobs {
				title := j.Title
				if title == "" {
					title = j.SourceURL
				}
				fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\n", j.ID, j.State, j.Progress, humanize.Time(j.CreatedAt), format.Truncate(title, 48))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of jobs (server default when 0)")
	return cmd
}

func actionCmd(o *options, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := o.client.Action(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", job.ID, job.State)
			return nil
		},
	}
}
