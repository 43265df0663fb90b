package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/4thel00z/docchat/internal"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func NewWatchCmd(processUC *internal.ProcessDocumentsUseCase, resolver *internal.ScopeResolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Re-index documents when they change",
		Long:  `Watch document directories and rebuild the index after changes settle.`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeWatchRunner(processUC, resolver),
	}

	cmd.Flags().Duration("debounce", 2*time.Second, "Quiet period before re-indexing")
	cmd.Flags().Bool("initial", true, "Index once before watching")
	return cmd
}

func makeWatchRunner(processUC *internal.ProcessDocumentsUseCase, resolver *internal.ScopeResolver) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		scopeHint, _ := cmd.Flags().GetString("scope")
		debounce, _ := cmd.Flags().GetDuration("debounce")
		initial, _ := cmd.Flags().GetBool("initial")

		dataPath := resolver.Resolve(scopeHint).DataPath

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()

		for _, root := range args {
			if err := addWatchDirs(watcher, root); err != nil {
				return fmt.Errorf("add watch dirs: %w", err)
			}
		}

		reindex := func() {
			out, err := processUC.Execute(cmd.Context(), internal.ProcessDocumentsInput{Paths: args, Scope: scopeHint})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "re-index failed: %v\n", err)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", time.Now().Format(time.TimeOnly), out.Status)
		}

		if initial {
			reindex()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", strings.Join(args, ", "))

		settle := newDebouncer(debounce)
		defer settle.Stop()

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if shouldIgnoreEvent(event, dataPath) {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = addWatchDirs(watcher, event.Name)
					}
				}
				settle.Touch()
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
			case <-settle.C():
				reindex()
			}
		}
	}
}

// debouncer fires once delay has passed since the most recent Touch.
type debouncer struct {
	delay time.Duration
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	timer := time.NewTimer(delay)
	timer.Stop()
	return &debouncer{delay: delay, timer: timer}
}

// Touch restarts the countdown; a fire still pending is discarded.
func (d *debouncer) Touch() { d.timer.Reset(d.delay) }

func (d *debouncer) C() <-chan time.Time { return d.timer.C }

func (d *debouncer) Stop() { d.timer.Stop() }

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// shouldIgnoreEvent drops workspace writes, hidden files and attribute
// changes so index saves do not trigger another rebuild.
func shouldIgnoreEvent(event fsnotify.Event, dataPath string) bool {
	if dataPath != "" && strings.HasPrefix(event.Name, dataPath) {
		return true
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return true
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0
}
