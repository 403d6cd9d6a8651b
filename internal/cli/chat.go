package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/harun/hive/pkg/agent"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	agent    string
	maxTurns int
	stream   bool
	debug    bool
	context  []string
}

var chatOpts chatOptions

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the agent catalog.
Each line you type is sent to the active agent; handoffs carry over to the
next line. Type "exit" or "quit", or send EOF, to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatOpts.agent, "agent", "", "agent to start with (default is the catalog entry)")
	chatCmd.Flags().IntVar(&chatOpts.maxTurns, "max-turns", 0, "maximum completions per message, negative for unlimited")
	chatCmd.Flags().BoolVar(&chatOpts.stream, "stream", false, "print completions as they arrive")
	chatCmd.Flags().BoolVar(&chatOpts.debug, "debug", false, "log run internals")
	chatCmd.Flags().StringArrayVar(&chatOpts.context, "context", nil, "initial context variable as key=value (repeatable)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cv, err := parseContextFlags(chatOpts.context)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	active := rt.catalog.Entry()
	if chatOpts.agent != "" {
		a, ok := rt.catalog.Agent(chatOpts.agent)
		if !ok {
			return fmt.Errorf("unknown agent %q (available: %s)", chatOpts.agent, strings.Join(rt.catalog.Names(), ", "))
		}
		active = a
	}

	opts := rt.runOptions()
	if cmd.Flags().Changed("max-turns") {
		opts = append(opts, agent.WithMaxTurns(chatOpts.maxTurns))
	}
	if cmd.Flags().Changed("debug") {
		opts = append(opts, agent.WithDebug(chatOpts.debug))
	}
	stream := rt.cfg.Run.Stream
	if cmd.Flags().Changed("stream") {
		stream = chatOpts.stream
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	var messages []agent.Message

	fmt.Fprintf(out, "Starting Hive CLI with %s\n", active.Name)

	for {
		fmt.Fprint(out, "User: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		input := append(messages, agent.UserMessage(line))
		runOpts := append(opts, agent.WithContextVariables(cv))

		var resp *agent.Response
		if stream {
			resp, err = printStream(out, rt.runner.RunStream(ctx, active, input, runOpts...))
		} else {
			resp, err = rt.runner.Run(ctx, active, input, runOpts...)
			if err == nil {
				printMessages(out, resp.Messages)
			}
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}

		messages = append(input, resp.Messages...)
		if resp.Agent != nil {
			active = resp.Agent
		}
		cv = resp.ContextVariables
	}

	return scanner.Err()
}

func parseContextFlags(pairs []string) (agent.ContextVariables, error) {
	cv := agent.ContextVariables{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --context %q (want key=value)", pair)
		}
		cv[key] = value
	}
	return cv, nil
}
