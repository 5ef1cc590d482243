package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/callrelay/runtime/logger"
)

var rootCmd = &cobra.Command{
	Use:           "callrelay",
	Short:         "Streaming LLM relay for voice agents",
	Version:       GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `callrelay accepts custom LLM WebSocket connections from a voice front end
and answers each conversational turn by streaming a chat completion from an
OpenAI-compatible gateway (Portkey routing to OpenRouter by default).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return
			}
			logger.SetVerbose(verbose)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging, including redacted provider requests")
}

// Execute runs the root command.
func Execute() {
	rootCmd.SetVersionTemplate(GetVersionInfo() + "\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
