package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"songbook/config"
	"songbook/generator"
	"songbook/server"
)

var version = "dev"

const (
	defaultPort   = 8080
	watchDebounce = 100 * time.Millisecond
)

var (
	root       string
	configJSON string
	port       int
	watch      bool
)

func loadBuildContext() (generator.BuildContext, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return generator.BuildContext{}, fmt.Errorf("error getting absolute path: %w", err)
	}

	cfg, err := config.LoadConfig(absRoot, configJSON)
	if err != nil {
		return generator.BuildContext{}, err
	}
	cats, err := cfg.BuildCategories()
	if err != nil {
		return generator.BuildContext{}, fmt.Errorf("invalid category config: %w", err)
	}

	return generator.BuildContext{
		Root:       absRoot,
		SiteName:   cfg.SiteName,
		Headroom:   cfg.Headroom,
		Categories: cats,
	}, nil
}

func addSong(inputPath string) error {
	ctx, err := loadBuildContext()
	if err != nil {
		return err
	}

	startTime := time.Now()
	job, result := generator.AddSong(ctx, inputPath)
	result.SetStartTime(startTime)
	result.PrintSummary(os.Stdout, job)

	if result.Failed() {
		return fmt.Errorf("song %s was not fully added", inputPath)
	}
	return nil
}

func relink(ctx context.Context, category string) error {
	bctx, err := loadBuildContext()
	if err != nil {
		return err
	}
	cat, ok := bctx.Categories.Lookup(category)
	if !ok {
		return fmt.Errorf("%w %q", generator.ErrUnknownCategory, category)
	}

	startTime := time.Now()
	result := generator.Relink(ctx, bctx.Root, cat)
	result.SetStartTime(startTime)
	result.PrintSummary(os.Stdout, nil)

	if result.Failed() {
		return fmt.Errorf("relinking %s did not complete cleanly", cat.Name)
	}
	return nil
}

// runWatchMode reloads connected browsers whenever a file below the site
// root changes. Bursts of events are merged into one reload.
func runWatchMode(ctx context.Context, absRoot string, srv *server.Server) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != absRoot {
				return filepath.SkipDir
			}
			if err := watcher.Add(path); err != nil {
				slog.Debug("Failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directories: %w", err)
	}

	var changedFilesCount int
	var debounceTimer *time.Timer
	fire := make(chan struct{}, 1)

	fmt.Printf("Watching %s for changes... (Press Ctrl+C to stop)\n", absRoot)
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						slog.Debug("Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			slog.Debug("Watcher event", "op", event.Op, "path", event.Name)

			changedFilesCount++
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			fmt.Printf("Changes detected (%d file%s changed), reloading\n", changedFilesCount, plural(changedFilesCount))
			changedFilesCount = 0
			srv.NotifyReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher error", "error", err)
		}
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func serve(ctx context.Context) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("error getting absolute path: %w", err)
	}

	srv := server.NewServer(absRoot, port)
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Run(ctx)
	}()

	if watch {
		go func() {
			if err := runWatchMode(ctx, absRoot, srv); err != nil {
				slog.Error("Watch mode failed", "error", err)
			}
		}()
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func main() {
	level := slog.LevelError
	if os.Getenv("SONGBOOK_DEBUG") == "true" || os.Getenv("SONGBOOK_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rootCmd = &cobra.Command{
		Use:           "songbook [file]",
		Short:         "Add songs to a static lyrics site",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return addSong(args[0])
		},
	}

	var addCmd = &cobra.Command{
		Use:   "add <file>",
		Short: "Add the song in <file> to the site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addSong(args[0])
		},
	}

	var relinkCmd = &cobra.Command{
		Use:   "relink <category>",
		Short: "Rewrite the previous and next links of every page in <category>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return relink(ctx, args[0])
		},
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the site for local preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(ctx)
		},
	}

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("songbook", version)
		},
	}

	rootCmd.PersistentFlags().StringVar(&root, "root", ".", "site root directory")
	rootCmd.PersistentFlags().StringVar(&configJSON, "config", "", "JSON config string (overrides .songbook.json)")

	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to serve on")
	serveCmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload browsers when site files change")

	rootCmd.AddCommand(addCmd, relinkCmd, serveCmd, versionCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
