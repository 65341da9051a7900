package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/aridsondez/monjobs/pkg/client"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("ackctl: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ackctl",
		Usage: "Acknowledge and inspect jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Base URL of the acknowledgment API",
				Value:   "http://localhost:8080",
				EnvVars: []string{"MONJOBS_SERVER"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "ack",
				Usage: "Acknowledge a job",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "queue",
						Aliases:  []string{"q"},
						Usage:    "Queue the job belongs to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "job",
						Aliases:  []string{"j"},
						Usage:    "Job id",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "set",
						Usage: "Acknowledgment field as key=value (repeatable)",
					},
					&cli.StringFlag{
						Name:  "payload",
						Usage: "Acknowledgment as a JSON object; --set fields are merged over it",
					},
				},
				Action: ackJob,
			},
			{
				Name:  "get",
				Usage: "Show a job and its acknowledgment",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "queue", Aliases: []string{"q"}, Required: true},
					&cli.StringFlag{Name: "job", Aliases: []string{"j"}, Required: true},
				},
				Action: getJob,
			},
		},
	}
}

func ackJob(c *cli.Context) error {
	payload, err := buildPayload(c.String("payload"), c.StringSlice("set"))
	if err != nil {
		return err
	}

	cl := client.NewClient(c.String("server"))
	ok, err := cl.Acknowledge(c.Context, c.String("queue"), c.String("job"), payload)
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit("not acknowledged (already acknowledged, wrong queue or unknown job)", 2)
	}
	fmt.Fprintln(c.App.Writer, "acknowledged")
	return nil
}

func getJob(c *cli.Context) error {
	cl := client.NewClient(c.String("server"))
	job, err := cl.GetJob(c.Context, c.String("queue"), c.String("job"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

// buildPayload merges key=value pairs over an optional JSON object.
func buildPayload(raw string, fields []string) (map[string]any, error) {
	payload := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("invalid --payload: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", f)
		}
		payload[k] = v
	}
	return payload, nil
}
