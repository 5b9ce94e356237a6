package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// OwnerStats is an owner's tier, quota use and job counts.
type OwnerStats struct {
	OwnerID    string         `json:"owner_id"`
	Tier       string         `json:"tier"`
	DailyLimit int            `json:"daily_limit"`
	UsedToday  int            `json:"used_today"`
	Jobs       map[string]int `json:"jobs"`
	Artifacts  int            `json:"artifacts"`
	TotalSize  int64          `json:"total_size"`
}

func (c *Client) Stats(ctx context.Context, owner string) (*OwnerStats, error) {
	var stats OwnerStats
	if err := c.do(ctx, http.MethodGet, "/owners/"+url.PathEscape(owner)+"/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) SetTier(ctx context.Context, owner, tier string) (*OwnerStats, error) {
	var stats OwnerStats
	body := map[string]string{"tier": tier}
	if err := c.do(ctx, http.MethodPut, "/owners/"+url.PathEscape(owner)+"/tier", nil, body, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func printStats(cmd *cobra.Command, s *OwnerStats) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "owner\t%s\n", s.OwnerID)
	fmt.Fprintf(tw, "tier\t%s\n", s.Tier)
	if s.DailyLimit > 0 {
		fmt.Fprintf(tw, "today\t%d of %d\n", s.UsedToday, s.DailyLimit)
	} else {
		fmt.Fprintf(tw, "today\t%d (unlimited)\n", s.UsedToday)
	}
	states := make([]string, 0, len(s.Jobs))
	for st := range s.Jobs {
		states = append(states, st)
	}
	slices.Sort(states)
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%d\n", st, s.Jobs[st])
	}
	fmt.Fprintf(tw, "artifacts\t%d (%s)\n", s.Artifacts, humanize.Bytes(uint64(max(s.TotalSize, 0))))
	return tw.Flush()
}

func statsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the owner's tier, today's quota use and job counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := o.owner()
			if err != nil {
				return err
			}
			stats, err := o.client.Stats(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printStats(cmd, stats)
		},
	}
}

func tierCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:       "tier <free|premium>",
		Short:     "Move the owner to another quota tier",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"free", "premium"},
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := o.owner()
			if err != nil {
				return err
			}
			stats, err := o.client.SetTier(cmd.Context(), owner, args[0])
			if err != nil {
				return err
			}
			return printStats(cmd, stats)
		},
	}
}
