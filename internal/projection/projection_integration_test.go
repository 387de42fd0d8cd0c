package projection_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"iamcore/internal/projection"
	"iamcore/internal/store/migrations"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/idgen"
	"iamcore/pkg/txstore"
)

// fakeReducer lets the test control exactly which event type is poison
// (fails Reduce) and records every event it successfully applied, so the
// assertions below can tell a quarantined event apart from a processed one.
type fakeReducer struct {
	poisonType atomic.Bool

	mu        sync.Mutex
	processed []eventstore.Event
}

func (r *fakeReducer) Init(ctx context.Context) error  { return nil }
func (r *fakeReducer) Reset(ctx context.Context) error { return nil }

func (r *fakeReducer) Reduce(ctx context.Context, e eventstore.Event) error {
	if e.EventType == "user.profile.changed" && r.poisonType.Load() {
		return fmt.Errorf("fakeReducer: simulated poison failure for %s", e.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, e)
	return nil
}

func (r *fakeReducer) processedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.processed))
	for i, e := range r.processed {
		ids[i] = e.ID
	}
	return ids
}

// TestHandler_QuarantineAndRetry exercises spec §8 scenario S3: a poison
// event is quarantined without halting the batch, the following valid
// event is still applied, and the projection's position advances past
// the poison event. It then drives RetryFailedEvent once the underlying
// condition is fixed and checks the quarantine record clears.
func TestHandler_QuarantineAndRetry(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker for testcontainers")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, container, dsn := mustStartPostgres(t, ctx)
	defer container.Terminate(ctx)
	defer pool.Close()

	require.NoError(t, migrations.Up(dsn))

	ids, err := idgen.NewGenerator(1)
	require.NoError(t, err)

	es, err := eventstore.New(ctx, pool, ids, eventstore.DefaultConfig())
	require.NoError(t, err)
	defer es.Close()

	store := txstore.New(pool)

	reducer := &fakeReducer{}
	reducer.poisonType.Store(true)

	cfg := projection.DefaultConfig("poison_test")
	cfg.Interval = 20 * time.Millisecond
	cfg.InstanceID = "inst1"
	handler := projection.NewHandler(cfg, store, es, reducer)
	require.NoError(t, handler.Start(ctx))
	defer handler.Stop()

	// One PushMany puts all three events at the same position, so the
	// poison event e2 sits at inPositionOrder 1 inside the batch.
	aggID := "u1"
	events, err := es.PushMany(ctx, []eventstore.Cmd{
		eventstore.NewCmd("user.created", "user", aggID, []byte(`{}`), "e", "org1", "inst1"),
		eventstore.NewCmd("user.profile.changed", "user", aggID, []byte(`{}`), "e", "org1", "inst1"),
		eventstore.NewCmd("user.locked", "user", aggID, []byte(`{}`), "e", "org1", "inst1"),
	})
	require.NoError(t, err)
	require.Len(t, events, 3)
	e1, e2, e3 := events[0], events[1], events[2]

	waitForPosition(t, ctx, handler, e3.Position)

	require.ElementsMatch(t, []string{e1.ID, e3.ID}, reducer.processedIDs(),
		"the poison event must be skipped but the surrounding valid events applied")

	var failureCount int
	row := pool.QueryRow(ctx, `
		SELECT failure_count FROM projection_failed_events
		WHERE projection_name = $1 AND failed_position = $2 AND failed_in_position_order = $3 AND instance_id = $4
	`, "poison_test", e2.Position.Position, e2.Position.InPositionOrder, "inst1")
	require.NoError(t, row.Scan(&failureCount))
	require.Equal(t, 1, failureCount)

	var persistedPos int64
	row = pool.QueryRow(ctx, `SELECT position FROM projection_states WHERE projection_name = $1 AND instance_id = $2`, "poison_test", "inst1")
	require.NoError(t, row.Scan(&persistedPos))
	require.Equal(t, e3.Position.Position, persistedPos, "the projection position must advance past the quarantined event")

	// Fix the condition that made e2 poison, then retry it explicitly.
	reducer.poisonType.Store(false)
	require.NoError(t, handler.RetryFailedEvent(ctx, e2.Position.Position, e2.Position.InPositionOrder))

	require.ElementsMatch(t, []string{e1.ID, e2.ID, e3.ID}, reducer.processedIDs(),
		"retry must apply exactly the originally-quarantined event, not a different one from the same batch")

	var remaining int
	row = pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM projection_failed_events
		WHERE projection_name = $1 AND failed_position = $2 AND failed_in_position_order = $3 AND instance_id = $4
	`, "poison_test", e2.Position.Position, e2.Position.InPositionOrder, "inst1")
	require.NoError(t, row.Scan(&remaining))
	require.Equal(t, 0, remaining, "a successful retry must clear the quarantine record")
}

func waitForPosition(t *testing.T, ctx context.Context, h *projection.Handler, target eventstore.Position) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if !h.Position().Less(target) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("projection did not reach position %+v in time (currently %+v)", target, h.Position())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func mustStartPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, testcontainers.Container, string) {
	t.Helper()
	password, err := generateRandomPassword(16)
	require.NoError(t, err)

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17.5-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env:          map[string]string{"POSTGRES_PASSWORD": password},
		WaitingFor:   wait.ForListeningPort("5432/tcp"),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:%s@%s:%s/postgres?sslmode=disable", password, host, port.Port())
	poolConfig, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)
	return pool, c, dsn
}

func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
