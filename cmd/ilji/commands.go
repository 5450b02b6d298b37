package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bdobrica/ilji/common/version"
	"github.com/bdobrica/ilji/internal/ilji/app"
	"github.com/bdobrica/ilji/internal/ilji/config"
	"github.com/bdobrica/ilji/internal/ilji/journal"
	"github.com/bdobrica/ilji/internal/ilji/mode"
	"github.com/bdobrica/ilji/internal/ilji/observability"
	"github.com/bdobrica/ilji/internal/ilji/store"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ilji",
		Short: "Matrix chat assistant that keeps a daily journal",
		Long: `ilji answers messages in Matrix rooms with a mode picked from the room
name, and saves each day's conversation as journal entries to Notion,
Google Calendar and local markdown files.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newModeCmd(),
		newSplitCmd(),
		newPublishesCmd(),
		newVersionCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	var dbPath, httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Matrix and run the bot",
		Long:  `Load configuration from the environment (and .env), connect to the homeserver and answer messages until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DatabasePath = dbPath
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTPAddr = httpAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := observability.Setup(observability.Options{
				Level:   cfg.LogLevel,
				Format:  cfg.LogFormat,
				Secrets: cfg.Secrets(),
			})
			logger.Info("starting", "version", version.String())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, cleanup, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			bot, err := app.New(components)
			if err != nil {
				return err
			}
			return bot.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DATABASE_PATH; empty keeps history in memory)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "health server address (overrides HTTP_ADDR)")
	return cmd
}

func newModeCmd() *cobra.Command {
	var modesFile string
	cmd := &cobra.Command{
		Use:   "mode <room name>",
		Short: "Show which mode a room name resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modesFile == "" {
				modesFile = os.Getenv("MODES_FILE")
			}
			table := mode.Default()
			if modesFile != "" {
				var err error
				if table, err = mode.LoadFile(modesFile); err != nil {
					return err
				}
			}
			m := table.Resolve(args[0])
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", m.Emoji, m.Name)
			fmt.Fprintf(out, "tier:     %s\n", m.Tier)
			fmt.Fprintf(out, "rate:     %s\n", m.Rate)
			fmt.Fprintf(out, "strategy: %s\n", m.Strategy)
			fmt.Fprintf(out, "scope:    %s\n", m.Scope)
			if m.ForwardTranslations {
				fmt.Fprintln(out, "forwards translations")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modesFile, "modes", "", "mode table YAML (default: MODES_FILE or the built-in table)")
	return cmd
}

func newSplitCmd() *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "split [file]",
		Short: "Split a free-text journal into dated records",
		Long:  `Read text from file (or stdin), section it on "M월 D일" markers and print the records as JSON.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			now := time.Now()
			if today != "" {
				if now, err = time.ParseInLocation(time.DateOnly, today, time.Local); err != nil {
					return fmt.Errorf("--today: %w", err)
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(journal.SectionByDate(string(data), now))
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "reference date YYYY-MM-DD (default: now)")
	return cmd
}

func newPublishesCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "publishes",
		Short: "List recent publish attempts from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				dbPath = os.Getenv("DATABASE_PATH")
			}
			if dbPath == "" {
				return errors.New("no database: pass --db or set DATABASE_PATH")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			st, err := store.Open(ctx, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.RecentPublishes(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "no publishes recorded")
				return nil
			}
			for _, r := range recs {
				status := "ok"
				if !r.OK {
					status = "FAILED: " + r.Error
				}
				fmt.Fprintf(out, "%s  %-8s  %s  %s  %s\n",
					r.CreatedAt.Local().Format(time.DateTime), r.Adapter, r.EntryDate, r.ConversationKey, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default: DATABASE_PATH)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
