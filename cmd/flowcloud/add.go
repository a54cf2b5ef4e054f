package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/config"
)

var addCmd = &cobra.Command{
	Use:   "add [flags] <file1> [file2] ...",
	Short: "Import files into the storage directory",
	Long: `Copy local files into the gateway's storage directory.

Destination paths go through the same normalization as requests, so files
the gateway would refuse to serve are rejected here too.

Examples:
  # Add a single file
  flowcloud add /path/to/report.pdf

  # Add under a destination prefix and print a capability link
  flowcloud add --dest docs/ --issue /path/to/report.pdf

  # Add a directory recursively
  flowcloud add -r /path/to/assets

  # Skip existing files
  flowcloud add --no-clobber /path/to/file.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addDest      string
	addRecursive bool
	addNoClobber bool
	addIssue     bool
	addQuiet     bool
)

func init() {
	addCmd.Flags().StringVarP(&addDest, "dest", "d", "", "destination path prefix in storage")
	addCmd.Flags().BoolVarP(&addRecursive, "recursive", "r", false, "recursively add directories")
	addCmd.Flags().BoolVarP(&addNoClobber, "no-clobber", "n", false, "skip existing files instead of overwriting")
	addCmd.Flags().BoolVar(&addIssue, "issue", false, "issue an access key for each added file")
	addCmd.Flags().BoolVarP(&addQuiet, "quiet", "q", false, "suppress per-file output")
	rootCmd.AddCommand(addCmd)
}

// fileEntry represents a file to be added with its source and destination paths.
type fileEntry struct {
	sourcePath string
	destPath   string
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	gateway, vault, storage, cleanup, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var files []fileEntry
	for _, arg := range args {
		entries, collectErr := collectFiles(arg, addRecursive, addDest)
		if collectErr != nil {
			return fmt.Errorf("collect files from %s: %w", arg, collectErr)
		}
		files = append(files, entries...)
	}

	if len(files) == 0 {
		slog.Info("no files to add")
		return nil
	}

	added := 0
	skipped := 0

	for _, entry := range files {
		dest, normErr := gateway.Normalize(entry.destPath)
		if normErr != nil {
			return fmt.Errorf("add %s: %w", entry.destPath, normErr)
		}

		if addNoClobber {
			_, statErr := storage.Stat(ctx, dest)
			if statErr == nil {
				skipped++
				if !addQuiet {
					slog.Info("skipped (exists)", "path", dest)
				}
				continue
			}
			if !errors.Is(statErr, flowcloud.ErrNotFound) {
				return fmt.Errorf("stat %s: %w", dest, statErr)
			}
		}

		f, openErr := os.Open(entry.sourcePath)
		if openErr != nil {
			return fmt.Errorf("open %s: %w", entry.sourcePath, openErr)
		}

		result, writeErr := storage.Write(ctx, dest, f)
		_ = f.Close()
		if writeErr != nil {
			return fmt.Errorf("add %s: %w", dest, writeErr)
		}

		added++
		if !addQuiet {
			slog.Info("added", "path", dest, "bytes", result.BytesWritten, "etag", result.Etag)
		}

		if addIssue {
			token, issueErr := vault.Issue(ctx, dest)
			if issueErr != nil {
				return fmt.Errorf("issue key for %s: %w", dest, issueErr)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", dest, capabilityLink(cfg, dest, token))
		}
	}

	slog.Info("add complete", "added", added, "skipped", skipped)
	return nil
}

// collectFiles gathers files from a path, optionally recursively.
// Returns a list of file entries with source and destination paths.
func collectFiles(path string, recursive bool, destPrefix string) ([]fileEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	destPrefix = strings.TrimPrefix(destPrefix, "/")
	if destPrefix != "" && !strings.HasSuffix(destPrefix, "/") {
		destPrefix += "/"
	}

	if !info.IsDir() {
		return []fileEntry{{sourcePath: path, destPath: destPrefix + filepath.Base(path)}}, nil
	}

	if !recursive {
		return nil, fmt.Errorf("%s is a directory (use -r to add recursively)", path)
	}

	var entries []fileEntry
	walkErr := filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, relErr := filepath.Rel(path, walkPath)
		if relErr != nil {
			return relErr
		}

		entries = append(entries, fileEntry{
			sourcePath: walkPath,
			destPath:   destPrefix + filepath.ToSlash(relPath),
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return entries, nil
}
