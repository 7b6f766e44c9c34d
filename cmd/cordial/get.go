package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Comcast/cordial/client"

	"github.com/spf13/cobra"
)

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get ROUTE",
		Short: "Make a rate-limited GET and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			c, err := client.New(cfg.ClientConfig())
			if err != nil {
				return err
			}

			route := args[0]
			if !strings.HasPrefix(route, "/") {
				route = "/" + route
			}
			x, err := c.Request(cmd.Context(), http.MethodGet, route, nil)
			if err != nil {
				return err
			}
			js, err := json.MarshalIndent(x, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", js)
			return err
		},
	}
}
