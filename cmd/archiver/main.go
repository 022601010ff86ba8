// Command archiver moves the messages of chat sessions from the active tier
// into the SQLite archive.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"issuechat/config"
	"issuechat/internal/database"
	"issuechat/internal/di"
)

func main() {
	var (
		sessionIDs  []string
		archivePath string
		compression string
	)
	pflag.StringSliceVarP(&sessionIDs, "session", "s", nil, "chat session ID to archive (repeatable)")
	pflag.StringVar(&archivePath, "archive", "", "archive database path (overrides ARCHIVE_PATH)")
	pflag.StringVar(&compression, "compression", "", "archive row compression: zstd, lz4 or none (overrides ARCHIVE_COMPRESSION)")
	pflag.Parse()

	if len(sessionIDs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: archiver --session <id> [--session <id>...]")
		pflag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if archivePath != "" {
		cfg.ArchivePath = archivePath
	}
	if compression != "" {
		cfg.ArchiveCompression = compression
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	messages, cleanup, err := di.InitializeMessageManager(cfg, db, logger)
	if err != nil {
		log.Fatalf("Failed to initialize message manager: %v", err)
	}
	defer cleanup()

	ctx := context.Background()
	failed := false
	for _, id := range sessionIDs {
		moved, err := messages.ArchiveSession(ctx, id)
		if err != nil {
			log.Printf("Failed to archive chat session %s: %v", id, err)
			failed = true
			continue
		}
		fmt.Printf("%s\t%d\n", id, moved)
	}
	if failed {
		cleanup()
		db.Close()
		os.Exit(1)
	}
}
