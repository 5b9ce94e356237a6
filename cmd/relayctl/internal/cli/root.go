// Package cli implements relayctl, a command line client for the relay API.
package cli

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type options struct {
	v      *viper.Viper
	client *Client
}

// NewRootCmd builds the relayctl command tree. The server address comes
// from --server, RELAY_URL or the default http://localhost:8080; the owner
// from --owner or RELAY_OWNER.
func NewRootCmd() *cobra.Command {
	o := &options{v: viper.New()}
	o.v.SetEnvPrefix("RELAY")
	o.v.SetDefault("url", "http://localhost:8080")
	o.v.SetDefault("timeout", 30*time.Second)
	o.v.SetDefault("retries", 3)
	_ = o.v.BindEnv("url")
	_ = o.v.BindEnv("owner")
	_ = o.v.BindEnv("timeout")
	_ = o.v.BindEnv("retries")

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Submit and manage media acquisition jobs",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.client = &Client{
				BaseURL:   o.v.GetString("url"),
				HTTP:      &http.Client{Timeout: o.v.GetDuration("timeout")},
				Retries:   uint64(max(o.v.GetInt("retries"), 0)),
				RetryBase: 200 * time.Millisecond,
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("server", "", "relay base URL (env RELAY_URL)")
	flags.String("owner", "", "owner id (env RELAY_OWNER)")
	flags.Duration("timeout", 0, "HTTP timeout for API calls (env RELAY_TIMEOUT)")
	_ = o.v.BindPFlag("url", flags.Lookup("server"))
	_ = o.v.BindPFlag("owner", flags.Lookup("owner"))
	_ = o.v.BindPFlag("timeout", flags.Lookup("timeout"))

	root.AddCommand(
		submitCmd(o),
		statusCmd(o),
		listCmd(o),
		actionCmd(o, "pause", "Pause a running job"),
		actionCmd(o, "resume", "Requeue a paused job"),
		actionCmd(o, "cancel", "Cancel a job"),
		shareCmd(o),
		fetchCmd(o),
		statsCmd(o),
		tierCmd(o),
	)
	return root
}
