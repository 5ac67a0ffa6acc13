package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lci/internal/config"
	"github.com/standardbeagle/lci/internal/debug"
	"github.com/standardbeagle/lci/internal/indexing"
	"github.com/standardbeagle/lci/internal/version"
	"github.com/standardbeagle/lci/pkg/pathutil"
)

// indexDirName is the directory under the project root that holds the two
// index folders. It starts with a dot so the default exclusions keep the
// index from indexing itself.
const indexDirName = ".lci"

func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		// Walk up from the working directory so lci can be invoked from
		// anywhere inside the project tree.
		root = indexing.FindProjectRoot(".")
	}
	canonical, err := pathutil.ToCanonical(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}
	root = canonical

	cfg, err := config.LoadWithRoot(c.String("config"), root)
	if err != nil {
		return nil, err
	}
	cfg.Project.Root = root
	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, exclude...)
	}

	if err := config.Normalize(cfg); err != nil {
		return nil, err
	}
	cfg.EnrichExclusionsWithBuildArtifacts()
	return cfg, nil
}

func openBuilder(cfg *config.Config) (*indexing.CodeIndexBuilder, error) {
	base := filepath.Join(cfg.Project.Root, indexDirName)
	return indexing.NewCodeIndexBuilder(
		cfg.Project.Name,
		filepath.Join(base, "CodeIndex"),
		filepath.Join(base, "HintIndex"),
	)
}

func main() {
	app := &cli.App{
		Name:                   "lci",
		Usage:                  "Full-text code indexing and search",
		Version:                version.Info(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file name (not consulted: .lci.kdl is read from the project root and the home directory)",
				Value:   ".lci.kdl",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "project root to index (defaults to the project root detected upward from the working directory)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "glob patterns of files to index (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "glob patterns to exclude (appended to config)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				os.Setenv("DEBUG", "1")
				debug.SetDebugOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			indexCommand(),
			searchCommand(),
			hintCommand(),
			watchCommand(),
			statusCommand(),
			clearCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Scan the project root and (re)build both indexes",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "incremental",
				Usage: "only re-index files whose modification time changed since the last run",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			builder, err := openBuilder(cfg)
			if err != nil {
				return err
			}
			defer builder.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scanner := indexing.NewFileScanner(cfg)
			files, err := scanner.Scan(ctx)
			if err != nil {
				return err
			}

			start := time.Now()

			if c.Bool("incremental") {
				files, err = reconcile(ctx, builder, files)
				if err != nil {
					return err
				}
			} else {
				// Full rebuild keeps the one-document-per-path invariant
				// across runs and doubles as hint-index compaction.
				if err := builder.DeleteAll(); err != nil {
					return err
				}
			}

			fmt.Printf("Indexing %d files under %s\n", len(files), cfg.Project.Root)
			failed, err := builder.BuildByBatch(ctx, files, true, false, false, cfg.Index.BatchSize)
			if err != nil {
				return err
			}
			if err := builder.Commit(); err != nil {
				return err
			}

			fmt.Printf("Indexed %d files in %s\n", len(files)-len(failed), time.Since(start).Round(time.Millisecond))
			for _, f := range failed {
				fmt.Printf("  failed: %s (%v)\n", f.Path, f.Err)
			}
			return nil
		},
	}
}

// reconcile diffs the scan against what the code index already holds:
// unchanged files are dropped from the batch, changed files are re-indexed
// through Update so their CodePK survives, and documents whose file is gone
// from disk are deleted. The returned slice holds only files new to the
// index.
func reconcile(ctx context.Context, builder *indexing.CodeIndexBuilder, files []indexing.FileInfo) ([]indexing.FileInfo, error) {
	indexed, err := builder.GetAllIndexed()
	if err != nil {
		return nil, err
	}
	known := make(map[string]time.Time, len(indexed))
	for _, f := range indexed {
		known[f.Path] = f.LastWriteTimeUtc
	}

	var fresh []indexing.FileInfo
	onDisk := make(map[string]bool, len(files))
	for _, fi := range files {
		onDisk[fi.Path] = true
		lastIndexed, ok := known[fi.Path]
		switch {
		case !ok:
			fresh = append(fresh, fi)
		case !lastIndexed.Equal(fi.LastWriteTimeUtc):
			if _, err := builder.Update(ctx, fi); err != nil {
				return nil, err
			}
		}
	}

	for path := range known {
		if !onDisk[path] {
			if err := builder.Delete(path); err != nil {
				return nil, err
			}
		}
	}

	return fresh, nil
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search file content; whitespace between terms means AND",
		ArgsUsage: "<terms...>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max", Usage: "maximum results", Value: 50},
			&cli.StringFlag{Name: "ext", Usage: "list files with this exact extension instead of searching content (e.g. .go)"},
			&cli.StringFlag{Name: "name", Usage: "search file names instead of content"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			builder, err := openBuilder(cfg)
			if err != nil {
				return err
			}
			defer builder.Close()

			max := c.Int("max")

			var results []indexing.SearchResult
			switch {
			case c.String("name") != "":
				results, err = builder.SearchFileName(c.String("name"), max)
			case c.String("ext") != "":
				results, err = builder.SearchExtension(c.String("ext"), max)
			default:
				if c.NArg() == 0 {
					return cli.Exit("search requires at least one term", 1)
				}
				terms := ""
				for i := 0; i < c.NArg(); i++ {
					if i > 0 {
						terms += " "
					}
					terms += c.Args().Get(i)
				}
				results, err = builder.SearchContent(terms, max)
			}
			if err != nil {
				return err
			}

			for _, r := range results {
				fmt.Println(pathutil.ToRelative(r.Path, cfg.Project.Root))
			}
			fmt.Printf("%d results\n", len(results))
			return nil
		},
	}
}

func hintCommand() *cli.Command {
	return &cli.Command{
		Name:      "hint",
		Usage:     "Typeahead lookup against the hint index",
		ArgsUsage: "<prefix>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max", Usage: "maximum suggestions", Value: 20},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("hint requires exactly one prefix argument", 1)
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			builder, err := openBuilder(cfg)
			if err != nil {
				return err
			}
			defer builder.Close()

			words, err := builder.SearchHints(c.Args().First(), c.Int("max"))
			if err != nil {
				return err
			}
			for _, w := range words {
				fmt.Println(w)
			}
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Index the project root, then keep the indexes synchronized with disk until interrupted",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			builder, err := openBuilder(cfg)
			if err != nil {
				return err
			}
			defer builder.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scanner := indexing.NewFileScanner(cfg)
			files, err := scanner.Scan(ctx)
			if err != nil {
				return err
			}
			if _, err := builder.BuildByBatch(ctx, files, true, false, false, cfg.Index.BatchSize); err != nil {
				return err
			}
			if err := builder.Commit(); err != nil {
				return err
			}
			fmt.Printf("Indexed %d files, watching %s\n", len(files), cfg.Project.Root)

			watcher, err := indexing.NewFileWatcher(cfg, scanner, builder)
			if err != nil {
				return err
			}
			if err := watcher.Start(cfg.Project.Root); err != nil {
				return err
			}

			<-ctx.Done()
			debug.LogIndexing("watch: shutting down\n")
			if err := watcher.Stop(); err != nil {
				return err
			}

			stats := watcher.GetStats()
			fmt.Printf("Processed %d events (%d errors)\n", stats.EventsProcessed, stats.ErrorCount)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show index document counts",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			builder, err := openBuilder(cfg)
			if err != nil {
				return err
			}
			defer builder.Close()

			codeCount, err := builder.CodeDocCount()
			if err != nil {
				return err
			}
			hintCount, err := builder.HintDocCount()
			if err != nil {
				return err
			}

			fmt.Printf("%s\n", version.FullInfo())
			fmt.Printf("Project root: %s\n", cfg.Project.Root)
			fmt.Printf("Code documents: %d\n", codeCount)
			fmt.Printf("Hint words: %d\n", hintCount)
			return nil
		},
	}
}

func clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every document from both indexes",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			builder, err := openBuilder(cfg)
			if err != nil {
				return err
			}
			defer builder.Close()

			if err := builder.DeleteAll(); err != nil {
				return err
			}
			if err := builder.Commit(); err != nil {
				return err
			}
			fmt.Println("Indexes cleared")
			return nil
		},
	}
}
