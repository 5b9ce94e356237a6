package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func shareCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "share <artifact-id>",
		Short: "Create a short link to an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := o.client.Share(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link.URL)
			return nil
		},
	}
}

func fetchCmd(o *options) *cobra.Command {
	var (
		output  string
		profile string
		part    int
		resume  bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <artifact-id>",
		Short: "Download an artifact, one of its parts, or a transcoded variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("--output is required")
			}
			query := url.Values{}
			if profile != "" {
				query.Set("profile", profile)
			}
			if part >= 0 {
				query.Set("part", strconv.Itoa(part))
			}

			var offset int64
			if resume {
				fi, err := os.Stat(output)
				switch {
				case err == nil:
					offset = fi.Size()
				case !errors.Is(err, fs.ErrNotExist):
					return err
				}
			}

			body, ranged, err := o.client.Download(cmd.Context(), args[0], query, offset)
			if err != nil {
				return err
			}
			defer body.Close()
			if !ranged {
				offset = 0
			}

			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if offset > 0 {
				flags = os.O_WRONLY | os.O_APPEND
			}
			f, err := os.OpenFile(output, flags, 0o644)
			if err != nil {
				return err
			}
			n, err := io.Copy(f, body)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s written\n", output, humanize.Bytes(uint64(offset+n)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file")
	cmd.Flags().StringVar(&profile, "profile", "", "transcoded profile (360p, 480p, 720p, 1080p, audio)")
	cmd.Flags().IntVar(&part, "part", -1, "download a single part of a split artifact")
	cmd.Flags().BoolVarP(&resume, "continue", "c", false, "resume a partial download")
	return cmd
}
