package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/telco-assist/internal/chat"
)

var askUser string

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run one chat turn locally and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initServe(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		reply := env.Dispatcher.Handle(cmd.Context(), askUser, strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
		if reply.Kind != chat.KindOK {
			return fmt.Errorf("%s error: %s", reply.Kind, reply.Text)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", chat.DefaultUserID, "user id for session state")
	rootCmd.AddCommand(askCmd)
}
