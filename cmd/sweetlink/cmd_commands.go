package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweetlink/sweetlink/internal/client"
	"github.com/sweetlink/sweetlink/pkg/protocol"
)

var (
	flagSession   string
	flagTimeoutMs int
)

func addCommandFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagSession, "session", "s", "", "target session (id, codename, or prefix)")
	cmd.Flags().IntVar(&flagTimeoutMs, "timeout", int(client.DefaultTimeout/time.Millisecond), "result timeout in milliseconds")
	rootCmd.AddCommand(cmd)
}

// readScriptSource returns the argument itself, or the whole input stream
// when the argument is "-".
func readScriptSource(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read script from stdin: %w", err)
	}
	return string(raw), nil
}

// dispatch resolves the session hint and sends one command.
func dispatch(cmd *cobra.Command, build func(id string) *protocol.Command) (*protocol.CommandResult, error) {
	c, err := relayClient(cmd.Context())
	if err != nil {
		return nil, err
	}
	sessionID, err := c.ResolveSession(cmd.Context(), flagSession)
	if err != nil {
		return nil, err
	}

	result, err := c.Send(cmd.Context(), sessionID, build(protocol.NewCommandID()),
		time.Duration(flagTimeoutMs)*time.Millisecond)
	if err != nil {
		if errors.Is(err, client.ErrResultTimeout) {
			return nil, fmt.Errorf("no result within %dms (session may be busy or gone)", flagTimeoutMs)
		}
		return nil, err
	}
	return result, nil
}

// printResult reports an error result verbatim or pretty-prints the data.
func printResult(result *protocol.CommandResult) error {
	if !result.OK {
		fmt.Fprintf(os.Stderr, "command failed after %.1fms: %s\n", result.DurationMs, result.Error)
		if result.Stack != "" {
			fmt.Fprintln(os.Stderr, result.Stack)
		}
		printConsole(result.Console)
		return fmt.Errorf("command failed")
	}

	printConsole(result.Console)
	if result.Data == nil {
		fmt.Printf("ok (%.1fms)\n", result.DurationMs)
		return nil
	}
	if s, ok := result.Data.(string); ok {
		fmt.Println(s)
		return nil
	}
	out, err := json.MarshalIndent(result.Data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printConsole(events []protocol.ConsoleEvent) {
	for _, ev := range events {
		args, _ := json.Marshal(ev.Args)
		fmt.Fprintf(os.Stderr, "[console.%s] %s\n", ev.Level, args)
	}
}

var runScriptCmd = &cobra.Command{
	Use:   "run <script|->",
	Short: "Execute a script in the session's page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readScriptSource(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		capture, _ := cmd.Flags().GetBool("console")

		result, err := dispatch(cmd, func(id string) *protocol.Command {
			return &protocol.Command{
				ID:   id,
				Type: protocol.CommandRunScript,
				RunScript: &protocol.RunScriptPayload{
					Source:         source,
					TimeoutMs:      flagTimeoutMs,
					CaptureConsole: capture,
				},
			}
		})
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var getDomCmd = &cobra.Command{
	Use:   "dom",
	Short: "Print the page's outer HTML",
	RunE: func(cmd *cobra.Command, args []string) error {
		selector, _ := cmd.Flags().GetString("selector")
		result, err := dispatch(cmd, func(id string) *protocol.Command {
			return &protocol.Command{
				ID:     id,
				Type:   protocol.CommandGetDom,
				GetDom: &protocol.GetDomPayload{Selector: selector},
			}
		})
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var navigateCmd = &cobra.Command{
	Use:   "nav <url>",
	Short: "Navigate the session's tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := dispatch(cmd, func(id string) *protocol.Command {
			return &protocol.Command{
				ID:       id,
				Type:     protocol.CommandNavigate,
				Navigate: &protocol.NavigatePayload{URL: args[0]},
			}
		})
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Probe a session's liveness and latency",
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		result, err := dispatch(cmd, func(id string) *protocol.Command {
			return &protocol.Command{ID: id, Type: protocol.CommandPing}
		})
		if err != nil {
			return err
		}
		if result.OK {
			fmt.Printf("pong in %s (page handler %.1fms)\n", time.Since(start).Truncate(time.Millisecond), result.DurationMs)
			return nil
		}
		return printResult(result)
	},
}

var screenshotCmd = &cobra.Command{
	Use:   "shot [output.jpg]",
	Short: "Capture a screenshot of the page or an element",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		selector, _ := cmd.Flags().GetString("selector")
		quality, _ := cmd.Flags().GetInt("quality")
		renderer, _ := cmd.Flags().GetString("renderer")
		fullPage, _ := cmd.Flags().GetBool("full-page")

		mode := protocol.CaptureViewport
		if selector != "" {
			mode = protocol.CaptureElement
		} else if fullPage {
			mode = protocol.CaptureFullPage
		}

		var hooks []protocol.CaptureHook
		if selector != "" {
			hooks = append(hooks,
				protocol.CaptureHook{Type: protocol.HookScrollIntoView, Selector: selector},
				protocol.CaptureHook{Type: protocol.HookWaitForIdleFrames, Frames: 2},
			)
		}

		result, err := dispatch(cmd, func(id string) *protocol.Command {
			return &protocol.Command{
				ID:   id,
				Type: protocol.CommandScreenshot,
				Screenshot: &protocol.ScreenshotPayload{
					Mode:     mode,
					Selector: selector,
					Quality:  quality,
					Renderer: renderer,
					Hooks:    hooks,
				},
			}
		})
		if err != nil {
			return err
		}
		if !result.OK {
			return printResult(result)
		}

		raw, _ := json.Marshal(result.Data)
		var shot protocol.ScreenshotData
		if err := json.Unmarshal(raw, &shot); err != nil {
			return fmt.Errorf("unexpected screenshot payload: %w", err)
		}
		img, err := base64.StdEncoding.DecodeString(shot.Base64)
		if err != nil {
			return fmt.Errorf("undecodable screenshot data: %w", err)
		}

		out := "screenshot.jpg"
		if len(args) == 1 {
			out = args[0]
		}
		if err := os.WriteFile(out, img, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%dx%d, %s renderer, %.1fms)\n", out, shot.Width, shot.Height, shot.Renderer, result.DurationMs)
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Suggest stable selectors for page elements",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		limit, _ := cmd.Flags().GetInt("limit")
		hidden, _ := cmd.Flags().GetBool("hidden")

		result, err := dispatch(cmd, func(id string) *protocol.Command {
			return &protocol.Command{
				ID:   id,
				Type: protocol.CommandDiscoverSelectors,
				DiscoverSelectors: &protocol.DiscoverSelectorsPayload{
					Scope:         scope,
					Limit:         limit,
					IncludeHidden: hidden,
				},
			}
		})
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

func init() {
	runScriptCmd.Flags().Bool("console", false, "capture console output during execution")
	addCommandFlags(runScriptCmd)

	getDomCmd.Flags().String("selector", "", "return only the first matching element")
	addCommandFlags(getDomCmd)

	addCommandFlags(navigateCmd)
	addCommandFlags(pingCmd)

	screenshotCmd.Flags().String("selector", "", "capture a specific element")
	screenshotCmd.Flags().Int("quality", 0, "jpeg quality 1-100")
	screenshotCmd.Flags().String("renderer", "", "preferred renderer (cdp-clip, dom-image)")
	screenshotCmd.Flags().Bool("full-page", false, "capture the full page")
	addCommandFlags(screenshotCmd)

	discoverCmd.Flags().String("scope", "", "limit discovery to elements under this selector")
	discoverCmd.Flags().Int("limit", 0, "max candidates to return")
	discoverCmd.Flags().Bool("hidden", false, "include hidden elements")
	addCommandFlags(discoverCmd)
}
