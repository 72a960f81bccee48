package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:    "msctl",
		Usage:   "Manage a running marketsync service",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of the marketsync API",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("MARKETSYNC_SERVER"),
			},
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "Bearer token from the login command",
				Sources: cli.EnvVars("MARKETSYNC_TOKEN"),
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			statusCommand(),
			pluginsCommand(),
			taskCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("msctl: %v", err)
	}
}

func clientFrom(cmd *cli.Command) *apiClient {
	return newAPIClient(strings.TrimRight(cmd.String("server"), "/"), cmd.String("token"))
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Authenticate and print a bearer token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var out struct {
				Token     string `json:"token"`
				TokenType string `json:"token_type"`
				ExpiresIn int    `json:"expires_in"`
			}
			err := clientFrom(cmd).post(ctx, "/api/v1/auth/login", map[string]string{
				"username": cmd.String("username"),
				"password": cmd.String("password"),
			}, &out)
			if err != nil {
				return err
			}
			fmt.Println(out.Token)
			fmt.Fprintf(os.Stderr, "Token valid for %d seconds. Export it:\n  export MARKETSYNC_TOKEN=%s\n",
				out.ExpiresIn, out.Token)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show service status",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tasks",
				Usage: "Show per-task run states instead of the service summary",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := "/api/v1/status"
			if cmd.Bool("tasks") {
				path = "/api/v1/status/tasks"
			}
			var out map[string]interface{}
			if err := clientFrom(cmd).get(ctx, path, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func pluginsCommand() *cli.Command {
	return &cli.Command{
		Name:  "plugins",
		Usage: "List available data source and storage plugins",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var out map[string]interface{}
			if err := clientFrom(cmd).get(ctx, "/api/v1/plugins", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func taskCommand() *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "Manage sync tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List registered tasks",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					var out map[string]interface{}
					if err := clientFrom(cmd).get(ctx, "/api/v1/tasks", &out); err != nil {
						return err
					}
					return printJSON(out)
				},
			},
			{
				Name:  "add",
				Usage: "Register a new sync task",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Task name"},
					&cli.StringFlag{Name: "source", Required: true, Usage: "Data source plugin, e.g. CryptoSpot"},
					&cli.StringFlag{Name: "storage", Required: true, Usage: "Storage plugin, e.g. LocalFile"},
					&cli.StringSliceFlag{Name: "symbol", Required: true, Usage: "Symbol to sync, repeatable"},
					&cli.StringFlag{Name: "timeframe", Value: "1d", Usage: "Bar granularity: 1w, 1d, 4h or 1h"},
					&cli.StringFlag{Name: "timerange", Value: "20220101-", Usage: "Target range, YYYYMMDD[_HHMMSS]-[YYYYMMDD[_HHMMSS]]"},
					&cli.StringFlag{Name: "slot-start", Usage: "Admission window start, HH:MM:SS or MM:SS"},
					&cli.StringFlag{Name: "slot-end", Usage: "Admission window end, HH:MM:SS or MM:SS"},
					&cli.StringSliceFlag{Name: "source-config", Usage: "Source plugin config as key=value, repeatable"},
					&cli.StringSliceFlag{Name: "storage-config", Usage: "Storage plugin config as key=value, repeatable"},
					&cli.BoolFlag{Name: "overwrite", Usage: "Replace an existing task with the same name"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					body := map[string]interface{}{
						"name":               cmd.String("name"),
						"data_source_name":   cmd.String("source"),
						"data_source_config": parseKeyValues(cmd.StringSlice("source-config")),
						"storage_name":       cmd.String("storage"),
						"storage_config":     parseKeyValues(cmd.StringSlice("storage-config")),
						"symbols":            cmd.StringSlice("symbol"),
						"timeframe":          cmd.String("timeframe"),
						"timerange_str":      cmd.String("timerange"),
						"overwrite":          cmd.Bool("overwrite"),
						"time_slot": map[string]string{
							"start": cmd.String("slot-start"),
							"end":   cmd.String("slot-end"),
						},
					}
					var out map[string]interface{}
					if err := clientFrom(cmd).post(ctx, "/api/v1/tasks", body, &out); err != nil {
						return err
					}
					return printJSON(out)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a task",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.StringArg("name")
					if name == "" {
						return fmt.Errorf("task name is required")
					}
					var out map[string]interface{}
					if err := clientFrom(cmd).delete(ctx, "/api/v1/tasks/"+name, &out); err != nil {
						return err
					}
					return printJSON(out)
				},
			},
			{
				Name:      "start",
				Usage:     "Dispatch a task immediately",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.StringArg("name")
					if name == "" {
						return fmt.Errorf("task name is required")
					}
					var out map[string]interface{}
					if err := clientFrom(cmd).post(ctx, "/api/v1/tasks/"+name+"/start", nil, &out); err != nil {
						return err
					}
					return printJSON(out)
				},
			},
			{
				Name:      "stop",
				Usage:     "Cancel a task's in-flight execution",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.StringArg("name")
					if name == "" {
						return fmt.Errorf("task name is required")
					}
					var out map[string]interface{}
					if err := clientFrom(cmd).post(ctx, "/api/v1/tasks/"+name+"/stop", nil, &out); err != nil {
						return err
					}
					return printJSON(out)
				},
			},
			{
				Name:      "status",
				Usage:     "Show one task's run state",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.StringArg("name")
					if name == "" {
						return fmt.Errorf("task name is required")
					}
					var out map[string]interface{}
					if err := clientFrom(cmd).get(ctx, "/api/v1/tasks/"+name+"/status", &out); err != nil {
						return err
					}
					return printJSON(out)
				},
			},
		},
	}
}

// parseKeyValues turns repeated key=value flags into a map
func parseKeyValues(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		out[key] = value
	}
	return out
}
