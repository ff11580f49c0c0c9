package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewjhunter/quill"
	"github.com/matthewjhunter/quill/internal/auth"
	"github.com/matthewjhunter/quill/internal/config"
	"github.com/matthewjhunter/quill/internal/output"
)

var (
	configPath   string
	outputFormat string
	debug        bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "quill",
		Short:         "Write channel posts with an LLM, from a Telegram bot or the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose development logging")

	rootCmd.AddCommand(botCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(channelsCmd())
	rootCmd.AddCommand(postsCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(ideasCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if _, err := output.ParseFormat(outputFormat); err != nil {
		return err
	}
	logger, err = newLogger(debug)
	return err
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func formatter() *output.Formatter {
	f, _ := output.ParseFormat(outputFormat)
	return output.NewFormatter(f)
}

func openEngine(ctx context.Context, readOnly bool) (*quill.Engine, error) {
	return quill.NewEngine(ctx, quill.EngineConfig{Config: cfg, Logger: logger, ReadOnly: readOnly})
}

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users known to the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()
			users, err := engine.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return formatter().OutputUserList(users)
		},
	}
}

func channelsCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List, create and delete channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()
			channels, err := engine.ListChannels(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return formatter().OutputChannelList(channels)
		},
	}
	cmd.PersistentFlags().Int64VarP(&userID, "user", "u", 0, "external (Telegram) user id")
	cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()
			ch, err := engine.CreateChannel(cmd.Context(), userID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return formatter().OutputChannelList([]quill.Channel{*ch})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <channel>",
		Short: "Delete a channel and all of its posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()
			if err := engine.DeleteChannel(cmd.Context(), userID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Deleted channel %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func postsCmd() *cobra.Command {
	var (
		userID int64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "posts <channel>",
		Short: "Show the most recent posts of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()
			posts, err := engine.RecentPosts(cmd.Context(), userID, args[0], limit)
			if err != nil {
				return err
			}
			return formatter().OutputPostList(posts)
		},
	}
	cmd.PersistentFlags().Int64VarP(&userID, "user", "u", 0, "external (Telegram) user id")
	cmd.MarkPersistentFlagRequired("user")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of posts")

	var idea, style string
	add := &cobra.Command{
		Use:   "add <channel> <text>",
		Short: "Add one example post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer engine.Close()
			p, err := engine.AddPost(cmd.Context(), userID, args[0], idea, style, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return formatter().OutputPostList([]quill.Post{*p})
		},
	}
	add.Flags().StringVar(&idea, "idea", "", "idea title (default from config)")
	add.Flags().StringVar(&style, "style", "", "style name (default from config)")
	cmd.AddCommand(add)
	return cmd
}

func importCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "import <channel> <file-or-feed-url>",
		Short: "Import example posts from a .csv, .txt, RSS/Atom file or feed URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx, true)
			if err != nil {
				return err
			}
			defer engine.Close()

			var result *quill.ImportResult
			source := args[1]
			if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
				fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				defer cancel()
				result, err = engine.ImportFeed(fetchCtx, userID, args[0], source)
			} else {
				var data []byte
				data, err = os.ReadFile(source)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", source, err)
				}
				result, err = engine.ImportFile(ctx, userID, args[0], source, data)
			}
			if err != nil {
				return err
			}
			return formatter().OutputImportResult(result)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "external (Telegram) user id")
	cmd.MarkFlagRequired("user")
	return cmd
}

func ideasCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "ideas <channel>",
		Short: "Suggest ideas for the next post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer engine.Close()
			ideas, err := engine.GenerateIdeas(cmd.Context(), userID, args[0])
			if err != nil {
				return err
			}
			return formatter().OutputIdeas(ideas)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "external (Telegram) user id")
	cmd.MarkFlagRequired("user")
	return cmd
}

func draftCmd() *cobra.Command {
	var (
		userID      int64
		idea, style string
		save        bool
	)
	cmd := &cobra.Command{
		Use:   "draft <channel>",
		Short: "Generate a post for an idea and style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx, false)
			if err != nil {
				return err
			}
			defer engine.Close()
			draft, err := engine.GenerateDraft(ctx, userID, args[0], idea, style)
			if err != nil {
				return err
			}
			if save {
				if _, err := engine.AddPost(ctx, userID, args[0], draft.Idea, draft.Style, draft.Text); err != nil {
					return fmt.Errorf("failed to save draft: %w", err)
				}
			}
			return formatter().OutputDraft(draft)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "external (Telegram) user id")
	cmd.Flags().StringVar(&idea, "idea", "", "idea to write about")
	cmd.Flags().StringVar(&style, "style", "", "style to write in")
	cmd.Flags().BoolVar(&save, "save", false, "store the draft as a channel post")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("idea")
	cmd.MarkFlagRequired("style")
	return cmd
}

func tokenCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the web API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl := time.Duration(cfg.Web.TokenTTLHour) * time.Hour
			issuer, err := auth.NewIssuer(cfg.Web.JWTSecret, ttl)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(userID)
			if err != nil {
				return err
			}
			var expires time.Time
			if ttl > 0 {
				expires = time.Now().Add(ttl)
			}
			return formatter().OutputToken(userID, token, expires)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "external (Telegram) user id")
	cmd.MarkFlagRequired("user")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default config file (.yaml or .toml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Default().Write(path); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote default config to %s\n", path)
			return nil
		},
	}
}
