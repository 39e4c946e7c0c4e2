package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/orrn/pagespool/internal/api/middleware"
	"github.com/orrn/pagespool/internal/logger"
	"github.com/orrn/pagespool/internal/spooler"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List configured print devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sp, err := spooler.New(cfg.Devices, logger.WithComponent("spooler"))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tONLINE\tDPI\tCOLOR\tDUPLEX\tPAPER")
		for _, name := range sp.Devices() {
			st, err := sp.Status(name)
			if err != nil {
				return err
			}
			papers := make([]string, 0, len(st.Capabilities.PaperSizes))
			for _, p := range st.Capabilities.PaperSizes {
				papers = append(papers, p.Name)
			}
			if len(papers) == 0 {
				papers = append(papers, "any")
			}
			fmt.Fprintf(w, "%s\t%t\t%d\t%t\t%t\t%s\n",
				st.Name, st.Online, st.Capabilities.DPI, st.Capabilities.Color, st.Capabilities.Duplex, strings.Join(papers, ","))
		}
		return w.Flush()
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for auth.admin_password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := middleware.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
