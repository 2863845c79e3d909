package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	natsio "github.com/nats-io/nats.go"
	"github.com/urfave/cli/v2"
)

// analyzeCommand queues a background analysis for a wallet.
func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Queue a background privacy analysis for a wallet",
		ArgsUsage: "<wallet>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "email",
				Usage: "Email address to deliver the report to",
			},
		},
		Action: func(c *cli.Context) error {
			wallet := c.Args().First()
			if wallet == "" {
				return fmt.Errorf("wallet address is required")
			}

			payload := map[string]string{"wallet": wallet}
			if email := c.String("email"); email != "" {
				payload["email"] = email
			}

			body, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("failed to encode request: %w", err)
			}

			url := c.String("server-url") + "/api/v1/analyses"
			resp, err := httpClient().Post(url, "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			return printResponse(resp, "")
		},
	}
}

// reportCommand fetches the full report for a wallet.
func reportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Fetch the latest analysis report for a wallet",
		ArgsUsage: "<wallet>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the response (e.g. '.analysis.privacyScore')",
			},
		},
		Action: func(c *cli.Context) error {
			wallet := c.Args().First()
			if wallet == "" {
				return fmt.Errorf("wallet address is required")
			}

			url := c.String("server-url") + "/api/v1/analyses/" + wallet
			resp, err := httpClient().Get(url)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			return printResponse(resp, c.String("jq"))
		},
	}
}

// scoreCommand fetches the lightweight synchronous score for a wallet.
func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "Fetch the privacy score for a wallet",
		ArgsUsage: "<wallet>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the response",
			},
		},
		Action: func(c *cli.Context) error {
			wallet := c.Args().First()
			if wallet == "" {
				return fmt.Errorf("wallet address is required")
			}

			url := c.String("server-url") + "/api/v1/score/" + wallet
			resp, err := httpClient().Get(url)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			return printResponse(resp, c.String("jq"))
		},
	}
}

// watchCommand subscribes to analysis events on NATS.
func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Watch analysis events as they are published",
		ArgsUsage: "[wallet]",
		Action: func(c *cli.Context) error {
			subject := "analyses.*"
			if wallet := c.Args().First(); wallet != "" {
				subject = "analyses." + wallet
			}

			nc, err := natsio.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			sub, err := nc.Subscribe(subject, func(msg *natsio.Msg) {
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, msg.Data, "", "  "); err != nil {
					fmt.Println(string(msg.Data))
					return
				}
				fmt.Println(pretty.String())
			})
			if err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
			}
			defer sub.Unsubscribe()

			fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", subject)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			return nil
		},
	}
}

// healthCommand checks server health.
func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			url := c.String("server-url") + "/health"
			resp, err := httpClient().Get(url)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// printResponse prints the JSON response body, optionally filtered through a
// jq expression.
func printResponse(resp *http.Response, jqExpr string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	if jqExpr == "" {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err != nil {
			fmt.Println(string(body))
			return nil
		}
		fmt.Println(pretty.String())
		return nil
	}

	query, err := gojq.Parse(jqExpr)
	if err != nil {
		return fmt.Errorf("failed to parse jq expression %q: %w", jqExpr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq expression %q: %w", jqExpr, err)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	iter := code.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq evaluation failed: %w", err)
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode jq result: %w", err)
		}
		fmt.Println(string(out))
	}
	return nil
}
