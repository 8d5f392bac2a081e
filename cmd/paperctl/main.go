// Command paperctl is the operator client for the paper processing API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "paperctl",
		Usage:  "Upload papers, poll tasks and review extractions",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "API base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"PAPER_SERVER"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "HTTP timeout; approve waits for the graph rebuild",
				Value: 30 * time.Minute,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload a PDF or CAJ file and print the task id",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Display name, defaults to the file name"},
				},
				Action: func(c *cli.Context) error {
					path, err := arg(c, "FILE")
					if err != nil {
						return err
					}
					data, err := withClient(c).upload(c.Context, path, c.String("name"))
					return output(c, data, err)
				},
			},
			{
				Name:      "status",
				Usage:     "Show a task",
				ArgsUsage: "TASK_ID",
				Action: func(c *cli.Context) error {
					id, err := arg(c, "TASK_ID")
					if err != nil {
						return err
					}
					data, err := withClient(c).doJSON(c.Context, http.MethodGet, "/api/v1/papers/"+escape(id), nil)
					return output(c, data, err)
				},
			},
			{
				Name:  "list",
				Usage: "List tasks, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Only tasks in this status, e.g. PENDING_APPROVAL"},
				},
				Action: func(c *cli.Context) error {
					path := "/api/v1/papers"
					if s := c.String("status"); s != "" {
						path += "?status=" + url.QueryEscape(s)
					}
					data, err := withClient(c).doJSON(c.Context, http.MethodGet, path, nil)
					return output(c, data, err)
				},
			},
			{
				Name:      "approve",
				Usage:     "Approve a task awaiting review, optionally overriding fields",
				ArgsUsage: "TASK_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "authors"},
					&cli.StringFlag{Name: "institution"},
					&cli.StringFlag{Name: "year"},
					&cli.StringFlag{Name: "source"},
					&cli.StringFlag{Name: "keywords"},
					&cli.StringFlag{Name: "doi"},
					&cli.StringFlag{Name: "abstract"},
					&cli.PathFlag{Name: "summary-file", Usage: "JSON file with the reviewed summary"},
				},
				Action: approveCommand,
			},
			{
				Name:      "reject",
				Usage:     "Reject a task and delete its files",
				ArgsUsage: "TASK_ID",
				Action: func(c *cli.Context) error {
					id, err := arg(c, "TASK_ID")
					if err != nil {
						return err
					}
					data, err := withClient(c).doJSON(c.Context, http.MethodPost, "/api/v1/papers/"+escape(id)+"/reject", nil)
					return output(c, data, err)
				},
			},
			{
				Name:  "rebuild",
				Usage: "Rebuild the knowledge graph, fully or for one title",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Only this article"},
				},
				Action: func(c *cli.Context) error {
					body := map[string]string{"title": c.String("title")}
					data, err := withClient(c).doJSON(c.Context, http.MethodPost, "/api/v1/graph/rebuild", body)
					return output(c, data, err)
				},
			},
			{
				Name:  "concepts",
				Usage: "Manage custom concept combinations",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List configured combinations",
						Action: func(c *cli.Context) error {
							data, err := withClient(c).doJSON(c.Context, http.MethodGet, "/api/v1/concepts", nil)
							return output(c, data, err)
						},
					},
					{
						Name:  "set",
						Usage: "Create or replace the combination in a slot",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "slot", Required: true, Usage: "1-3"},
							&cli.StringFlag{Name: "relationship", Required: true},
							&cli.StringSliceFlag{Name: "concept", Required: true, Usage: "Repeat for up to 5 concepts"},
						},
						Action: func(c *cli.Context) error {
							body := map[string]any{
								"relationshipName": c.String("relationship"),
								"concepts":         c.StringSlice("concept"),
							}
							path := "/api/v1/concepts/" + strconv.Itoa(c.Int("slot"))
							data, err := withClient(c).doJSON(c.Context, http.MethodPut, path, body)
							return output(c, data, err)
						},
					},
					{
						Name:  "delete",
						Usage: "Delete the combination in a slot",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "slot", Required: true},
						},
						Action: func(c *cli.Context) error {
							path := "/api/v1/concepts/" + strconv.Itoa(c.Int("slot"))
							if _, err := withClient(c).doJSON(c.Context, http.MethodDelete, path, nil); err != nil {
								return err
							}
							fmt.Fprintf(c.App.Writer, "slot %d deleted\n", c.Int("slot"))
							return nil
						},
					},
				},
			},
		},
	}
}

func approveCommand(c *cli.Context) error {
	id, err := arg(c, "TASK_ID")
	if err != nil {
		return err
	}

	edits := map[string]string{}
	for _, name := range []string{"title", "authors", "institution", "year", "source", "keywords", "doi", "abstract"} {
		if c.IsSet(name) {
			edits[name] = c.String(name)
		}
	}
	if p := c.Path("summary-file"); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if !json.Valid(data) {
			return fmt.Errorf("%s is not valid JSON", p)
		}
		edits["summaryJson"] = string(data)
	}

	data, err := withClient(c).doJSON(c.Context, http.MethodPost, "/api/v1/papers/"+escape(id)+"/approve", edits)
	return output(c, data, err)
}

func withClient(c *cli.Context) *client {
	return newClient(c.String("server"), c.Duration("timeout"))
}

func arg(c *cli.Context, name string) (string, error) {
	if c.NArg() < 1 {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return c.Args().First(), nil
}

// output 以缩进 JSON 输出响应
func output(c *cli.Context, data json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	var pretty any
	if json.Unmarshal(data, &pretty) != nil {
		_, err := c.App.Writer.Write(data)
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
