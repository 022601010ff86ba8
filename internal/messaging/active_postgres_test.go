package messaging

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"issuechat/internal/database"
	"issuechat/internal/sessions"
)

func openPostgres(t *testing.T, maxOpenConns int) *database.Database {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := database.Open(url, database.Options{MaxOpenConns: maxOpenConns})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(append(sessions.Models(), Models()...)...); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestPostgresActiveStoreContract(t *testing.T) {
	db := openPostgres(t, 4)
	runStoreContract(t, NewActiveStore(db.DB, nil))
}

// Every send holds a session connection while it writes the message, so
// more concurrent sends than pooled connections must still complete.
func TestPostgresSendsOutnumberPool(t *testing.T) {
	const poolSize, senders = 2, 12
	db := openPostgres(t, poolSize)

	active := NewActiveStore(db.DB, nil)
	tiered := NewTieredStore(active, NewMemoryStore(), nil)
	sm := sessions.NewManager(sessions.NewRepository(db.SQL, sessions.NewSessionsPostgresStorage(db.SQL), nil), tiered, nil)
	mm := NewManager(sm, tiered, tiered, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := sm.CreateSession(ctx, "p1", "t1", sessions.TaskTypeTask, "u1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	t.Cleanup(func() { sm.DeleteSession(context.Background(), s.ID) })

	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := mm.SendMessage(ctx, s.ID, "u1", ContentTypeText, fmt.Sprintf("message %d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("SendMessage: %v", err)
	}

	list, err := mm.ListMessages(ctx, s.ID)
	if err != nil || len(list) != senders {
		t.Fatalf("ListMessages = %d, %v", len(list), err)
	}
}
