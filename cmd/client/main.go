package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/iudanet/forwardsync/internal/backup"
	"github.com/iudanet/forwardsync/internal/client"
	clientsync "github.com/iudanet/forwardsync/internal/client/sync"
	"github.com/iudanet/forwardsync/internal/engine"
	"github.com/iudanet/forwardsync/internal/server"
	"github.com/iudanet/forwardsync/internal/storage/boltdb"
	"github.com/iudanet/forwardsync/internal/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	peerAddr := flag.String("peer", "", "Peer device address (host or host:port)")
	dbPath := flag.String("db", "forwardsync.db", "Path to local database")
	statePath := flag.String("state", "forwardsync-state.db", "Path to sync state database")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(logger, args, *peerAddr, *dbPath, *statePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, args []string, peerAddr, dbPath, statePath string) error {
	ctx := context.Background()
	command := args[0]

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	eng := engine.New(store, logger)

	switch command {
	case "status":
		return runStatus(ctx, peerAddr)
	case "sync":
		return runSync(ctx, logger, eng, peerAddr, statePath)
	case "pull":
		return runPull(ctx, logger, eng, peerAddr, statePath)
	case "push":
		return runPush(ctx, logger, eng, peerAddr, statePath)
	case "export":
		return runExport(ctx, eng, args[1:])
	case "import":
		return runImport(ctx, eng, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func newPeerClient(peerAddr string) (*client.Client, error) {
	if peerAddr == "" {
		return nil, fmt.Errorf("peer address is required (use -peer)")
	}
	return client.NewClient(client.NormalizeAddress(peerAddr, server.DefaultPort)), nil
}

// runStatus проверяет доступность peer-а.
func runStatus(ctx context.Context, peerAddr string) error {
	c, err := newPeerClient(peerAddr)
	if err != nil {
		return err
	}

	if err := c.Status(ctx); err != nil {
		return err
	}

	fmt.Printf("Peer %s is reachable\n", c.BaseURL())
	return nil
}

// runSync выполняет полный цикл обмена с peer-ом.
func runSync(ctx context.Context, logger *slog.Logger, eng *engine.Engine, peerAddr, statePath string) error {
	c, err := newPeerClient(peerAddr)
	if err != nil {
		return err
	}

	state, err := boltdb.New(ctx, statePath)
	if err != nil {
		return fmt.Errorf("failed to open sync state database: %w", err)
	}
	defer func() {
		if err := state.Close(); err != nil {
			logger.Error("failed to close sync state database", "error", err)
		}
	}()

	deviceID, err := state.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve device id: %w", err)
	}
	logger.Info("starting sync", "device_id", deviceID, "peer", c.BaseURL())

	svc := clientsync.NewService(c, eng, state, logger)
	result, err := svc.Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Sync with %s completed\n", c.BaseURL())
	fmt.Printf("  pulled:  %d records\n", result.PulledRecords)
	fmt.Printf("  applied: %d records (%d stale, %d skipped)\n",
		result.AppliedRecords, result.StaleRecords, result.SkippedRecords)
	fmt.Printf("  pushed:  %d records\n", result.PushedRecords)
	return nil
}

// runPull тянет изменения peer-а и применяет их, ничего не отправляя.
func runPull(ctx context.Context, logger *slog.Logger, eng *engine.Engine, peerAddr, statePath string) error {
	c, err := newPeerClient(peerAddr)
	if err != nil {
		return err
	}

	state, err := boltdb.New(ctx, statePath)
	if err != nil {
		return fmt.Errorf("failed to open sync state database: %w", err)
	}
	defer func() {
		if err := state.Close(); err != nil {
			logger.Error("failed to close sync state database", "error", err)
		}
	}()

	lastPull, err := state.GetLastPull(ctx, c.BaseURL())
	if err != nil {
		logger.Warn("failed to get last pull timestamp, using full export", "error", err)
		lastPull = 0
	}

	eng.BeginAwaitingPeer()
	pullStarted := time.Now().UnixMilli()
	doc, err := c.Pull(ctx, lastPull)
	if err != nil {
		eng.Reset()
		return err
	}

	report, err := eng.ApplyIncoming(ctx, doc)
	if err != nil {
		return err
	}

	if err := state.SaveLastPull(ctx, c.BaseURL(), pullStarted); err != nil {
		logger.Warn("failed to save last pull timestamp", "error", err)
	}

	fmt.Printf("Pulled from %s: %d applied, %d stale, %d skipped\n",
		c.BaseURL(), report.Applied, report.Stale, report.Validation.Total())
	return nil
}

// runPush отправляет локальные несинхронизированные изменения на peer.
func runPush(ctx context.Context, logger *slog.Logger, eng *engine.Engine, peerAddr, statePath string) error {
	c, err := newPeerClient(peerAddr)
	if err != nil {
		return err
	}

	state, err := boltdb.New(ctx, statePath)
	if err != nil {
		return fmt.Errorf("failed to open sync state database: %w", err)
	}
	defer func() {
		if err := state.Close(); err != nil {
			logger.Error("failed to close sync state database", "error", err)
		}
	}()

	delta, err := eng.Unsynced(ctx)
	if err != nil {
		return err
	}
	if delta.IsEmpty() {
		fmt.Println("Nothing to push")
		return nil
	}

	resp, err := c.Push(ctx, backup.EncodeFull(delta))
	if err != nil {
		return err
	}

	syncedAt := time.Now().UnixMilli()
	if err := eng.MarkSynced(ctx, syncedAt); err != nil {
		return err
	}
	if err := state.SaveLastPush(ctx, c.BaseURL(), syncedAt); err != nil {
		logger.Warn("failed to save last push timestamp", "error", err)
	}

	fmt.Printf("Pushed %d records to %s (%d applied, %d stale, %d skipped)\n",
		delta.Count(), c.BaseURL(), resp.Applied, resp.Stale, resp.Skipped)
	return nil
}

// runExport пишет полный backup-документ в файл.
func runExport(ctx context.Context, eng *engine.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: export <file>")
	}
	path := args[0]

	doc, err := eng.ExportFull(ctx)
	if err != nil {
		return err
	}

	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	fmt.Printf("Exported %d records to %s\n", doc.Database.Count(), path)
	return nil
}

// runImport применяет backup-документ из файла. Флаг -projects ограничивает
// импорт перечисленными проектами (и их потомками).
func runImport(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	projects := fs.String("projects", "", "Comma-separated project ids to import (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: import [-projects id1,id2] <file>")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	doc, err := backup.Decode(data)
	if err != nil {
		return err
	}

	var projectIDs []string
	if *projects != "" {
		for _, id := range strings.Split(*projects, ",") {
			if id = strings.TrimSpace(id); id != "" {
				projectIDs = append(projectIDs, id)
			}
		}
	}

	report, err := eng.ImportSelected(ctx, doc, projectIDs)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %s: %d applied, %d stale, %d skipped\n",
		path, report.Applied, report.Stale, report.Validation.Total())
	return nil
}

func printVersion() {
	fmt.Printf("ForwardSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ForwardSync Client

Usage:
  forwardsync-client [flags] <command> [args]

Commands:
  status                       Check that the peer device is reachable
  sync                         Exchange changes with the peer device (pull + push)
  pull                         Fetch and apply changes from the peer device
  push                         Send local unsynced changes to the peer device
  export <file>                Write a full backup document to a file
  import [-projects ids] <file> Apply a backup document from a file

Flags:
`)
	flag.PrintDefaults()
}
