// -- cmd/run.go --
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Safphere/OMG-Agent/internal/agent"
	"github.com/Safphere/OMG-Agent/internal/config"
	"github.com/Safphere/OMG-Agent/internal/device"
	"github.com/Safphere/OMG-Agent/internal/llmclient"
	"github.com/Safphere/OMG-Agent/internal/observability"
	"github.com/Safphere/OMG-Agent/internal/session"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		profileName string
		resumeID    string
		reply       string
	)

	runCmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Runs a natural-language task on the connected device",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so they override config file and environment values.
			if err := viper.BindPFlag("device.serial", cmd.Flags().Lookup("device")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.max_steps", cmd.Flags().Lookup("max-steps")); err != nil {
				return err
			}
			return viper.BindPFlag("agent.reply_mode", cmd.Flags().Lookup("reply-mode"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if resumeID == "" && len(args) == 0 {
				return fmt.Errorf("provide a task, or --resume with a session id")
			}

			// Rebuild rather than re-unmarshal in place: the flag binds changed
			// viper state, and normalization and validation must run again on
			// the merged result.
			loaded, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to apply flag overrides: %w", err)
			}
			cfg = loaded

			if profileName == "" {
				profileName = cfg.LLM.DefaultProfile
			}
			profile, err := cfg.Profile(profileName)
			if err != nil {
				return err
			}
			client, err := llmclient.NewClient(profile, logger)
			if err != nil {
				return err
			}

			adb := device.NewADB(cfg.Device, logger)

			store, err := session.NewStoreFromConfig(ctx, cfg.Session, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					logger.Warn("Failed to close session store", zap.Error(cerr))
				}
			}()
			sessions := session.NewManager(store, logger)

			a := agent.New(cfg.Agent, agent.Options{
				LLM:        client,
				Controller: adb,
				Inspector:  adb,
				Screens:    adb,
				Callbacks:  consoleCallbacks(),
				Sessions:   sessions,
				AskUser:    consoleAsk,
				DeviceID:   cfg.Device.Serial,
			}, logger)

			var result agent.RunResult
			if resumeID != "" {
				result, err = a.Resume(ctx, resumeID, reply)
				if err != nil {
					return err
				}
			} else {
				result = a.Run(ctx, args[0])
			}

			printRunResult(result)
			if !result.Success && result.StopReason != agent.StopPaused {
				return fmt.Errorf("task did not complete (%s)", result.StopReason)
			}
			return nil
		},
	}

	runCmd.Flags().StringP("device", "d", "", "adb device serial")
	runCmd.Flags().Int("max-steps", 0, "maximum number of agent steps")
	runCmd.Flags().String("reply-mode", "", "how to answer agent questions: auto, manual, callback, pause")
	runCmd.Flags().StringVarP(&profileName, "profile", "p", "", "llm profile name from the config")
	runCmd.Flags().StringVar(&resumeID, "resume", "", "resume a paused session by id")
	runCmd.Flags().StringVar(&reply, "reply", "", "answer to the pending question when resuming")

	return runCmd
}

func printRunResult(result agent.RunResult) {
	switch result.StopReason {
	case agent.StopCompleted:
		fmt.Printf("Task completed in %d steps.\n", result.Steps)
	case agent.StopPaused:
		fmt.Printf("Task paused waiting for your answer.\n")
		fmt.Printf("Question: %s\n", result.Message)
		fmt.Printf("Resume with: omg-agent run --resume %s --reply \"...\"\n", result.SessionID)
		return
	default:
		fmt.Printf("Task stopped (%s) after %d steps.\n", result.StopReason, result.Steps)
	}
	if result.Message != "" {
		fmt.Printf("Result: %s\n", result.Message)
	}
	if result.SessionID != "" {
		fmt.Printf("Session: %s\n", result.SessionID)
	}
}

// consoleCallbacks wires the interactive hooks to the terminal.
func consoleCallbacks() agent.Callbacks {
	return agent.Callbacks{
		Confirm: func(message string) bool {
			fmt.Printf("\nConfirm: %s [y/N] ", message)
			line := readLine()
			line = strings.ToLower(strings.TrimSpace(line))
			return line == "y" || line == "yes"
		},
		TakeOver: func(message string) {
			fmt.Printf("\nTake over the phone: %s\nPress Enter when done. ", message)
			readLine()
		},
	}
}

func consoleAsk(prompt string) string {
	fmt.Printf("\nAgent asks: %s\n> ", prompt)
	return strings.TrimSpace(readLine())
}

func readLine() string {
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}
