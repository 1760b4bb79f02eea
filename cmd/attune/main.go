package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"attune/internal/app"
	"attune/internal/config"
	"attune/internal/dashboard"
	"attune/internal/db"
	"attune/internal/engine/auth"
	"attune/internal/seed"
	"attune/internal/server"
	"attune/internal/tools"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "attune",
	Short: "Attune executive-function assistant",
	Long: `Attune plans days, gets people unstuck and spots patterns in their checkins.
- serve: run the JSON API, the agent progress stream and /metrics.
- seed: create the guest user with two weeks of demo history.
- tools: expose the record store tools over MCP on stdio.
- dashboard / journal: inspect a user's history from the terminal.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ATTUNE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("dir", "d", ".", "directory holding attune.yml and .attune/")
	rootCmd.PersistentFlags().String("db", "", "database file (overrides --dir)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(journalCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads attune.yml from --dir and applies environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("dir"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("reasoning-api-key"); v != "" {
		cfg.Reasoning.APIKey = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withRuntime(fn func(*app.Context) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := app.Open(app.Options{
		DB:     db.Config{DataDir: viper.GetString("dir"), Path: viper.GetString("db")},
		Config: cfg,
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func serveCmd() *cobra.Command {
	var basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and progress stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *app.Context) error {
				if rt.Config.Auth.JWTSecret == "" {
					return fmt.Errorf("ATTUNE_JWT_SECRET is required for bearer auth")
				}
				if basePath == "" {
					basePath = rt.Config.Server.BasePath
				}
				tokens := rt.Engine.Auth
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{Tokens: tokens, Logger: rt.Logger},
					Stream: server.StreamConfig{
						Hub:       rt.Hub,
						Tokens:    tokens,
						Heartbeat: rt.Config.Stream.Heartbeat,
						Metrics:   rt.Metrics,
					},
					Gatherer: rt.Registry,
					Logger:   rt.Logger,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Serving Attune API on http://%s%s (progress stream at /ws/agent-progress/{user_id})\n", rt.Config.Server.Addr, basePath)
				return server.Serve(cmd.Context(), rt.Config.Server.Addr, handler, rt.Logger)
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the guest user with demo history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *app.Context) error {
				u, err := seed.Guest(cmd.Context(), rt.Engine.Repo, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("Guest user %s ready\n", u.ID)
				return nil
			})
		},
	}
}

func toolsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Serve the record store tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *app.Context) error {
				s := tools.NewServer(tools.Env{Repo: rt.Engine.Repo, UserID: userID}, version)
				return mcpserver.ServeStdio(s)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "bind every tool to this user")
	return cmd
}

func dashboardCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show a user's trend, momentum and annotations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withRuntime(func(rt *app.Context) error {
				d, err := rt.Engine.Dashboard(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				renderDashboard(d)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	return cmd
}

func renderDashboard(d dashboard.Dashboard) {
	fmt.Printf("Momentum %d (delta %+d)\n", d.Momentum.Score, d.Momentum.Delta)
	notes := map[int][]string{}
	for _, a := range d.Annotations {
		notes[a.Day] = append(notes[a.Day], a.Text)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Day", "Date", "Mood", "Energy", "Done", "Rate", "Notes"})
	for _, p := range d.Trend {
		tw.AppendRow(table.Row{p.Day, p.Date, p.MoodScore, p.EnergyLevel,
			fmt.Sprintf("%d/%d", p.TasksCompleted, p.TasksTotal),
			fmt.Sprintf("%d%%", p.CompletionRate),
			strings.Join(notes[p.Day], "; ")})
	}
	tw.Render()
	if len(d.Hypotheses) == 0 {
		return
	}
	ht := table.NewWriter()
	ht.SetOutputMirror(os.Stdout)
	ht.AppendHeader(table.Row{"Pattern", "Prediction", "Confidence", "Status"})
	for _, h := range d.Hypotheses {
		ht.AppendRow(table.Row{h.PatternDetected, h.Prediction, h.Confidence, h.Status})
	}
	ht.Render()
}

func journalCmd() *cobra.Command {
	var userID string
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent pipeline runs for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withRuntime(func(rt *app.Context) error {
				evts, err := rt.Engine.Journal(cmd.Context(), userID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Pipeline", "Type", "Run", "Detail"})
				for _, e := range evts {
					detail, _ := json.Marshal(e.Payload)
					tw.AppendRow(table.Row{e.ID, e.TS, e.Pipeline, e.Type, shortID(e.RunID), string(detail)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "entries to show")
	return cmd
}

func tokenCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tokens := auth.Service{Secret: cfg.Auth.JWTSecret, TTL: cfg.Auth.TokenTTL}
			token, err := tokens.Issue(userID)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage attune.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default attune.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("dir"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	return cfg
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
