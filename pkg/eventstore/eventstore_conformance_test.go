package eventstore_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"iamcore/internal/store/migrations"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/idgen"
)

var (
	ctx       context.Context
	cancel    context.CancelFunc
	pool      *pgxpool.Pool
	container testcontainers.Container
	dsn       string
	store     eventstore.EventStore
	ids       *idgen.Generator
)

var _ = BeforeSuite(func() {
	ctx, cancel = context.WithTimeout(context.Background(), 3*time.Minute)
	var err error
	pool, container, dsn, err = setupTestDatabase(ctx)
	Expect(err).NotTo(HaveOccurred())

	Expect(migrations.Up(dsn)).To(Succeed())

	ids, err = idgen.NewGenerator(1)
	Expect(err).NotTo(HaveOccurred())

	store, err = eventstore.New(ctx, pool, ids, eventstore.DefaultConfig())
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if store != nil {
		store.Close()
	}
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		container.Terminate(ctx)
	}
	if cancel != nil {
		cancel()
	}
})

func TestEventstoreConformance(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Eventstore Conformance Suite")
}

func newAggregateID(prefix string) string {
	s, err := ids.NextString()
	Expect(err).NotTo(HaveOccurred())
	return prefix + "-" + s
}

var _ = Describe("EventStore", func() {
	cleanup := func() {
		_, err := pool.Exec(ctx, "TRUNCATE TABLE events RESTART IDENTITY CASCADE")
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(cleanup)

	Describe("PushWithConcurrencyCheck", func() {
		It("assigns aggregateVersion 1..N with no gaps (invariant 1)", func() {
			aggID := newAggregateID("user")
			cmds := []eventstore.Cmd{
				eventstore.NewCmd("user.created", "user", aggID, []byte(`{}`), "editor1", "org1", "inst1"),
				eventstore.NewCmd("user.profile.changed", "user", aggID, []byte(`{}`), "editor1", "org1", "inst1"),
			}
			events, err := store.PushWithConcurrencyCheck(ctx, cmds, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].AggregateVersion).To(Equal(int64(1)))
			Expect(events[1].AggregateVersion).To(Equal(int64(2)))
		})

		It("fails with ConcurrencyError on a stale expected version", func() {
			aggID := newAggregateID("user")
			_, err := store.PushWithConcurrencyCheck(ctx, []eventstore.Cmd{
				eventstore.NewCmd("user.created", "user", aggID, []byte(`{}`), "editor1", "org1", "inst1"),
			}, 0)
			Expect(err).NotTo(HaveOccurred())

			_, err = store.PushWithConcurrencyCheck(ctx, []eventstore.Cmd{
				eventstore.NewCmd("user.profile.changed", "user", aggID, []byte(`{}`), "editor1", "org1", "inst1"),
			}, 0)
			Expect(err).To(HaveOccurred())
			cerr, ok := eventstore.AsConcurrencyError(err)
			Expect(ok).To(BeTrue())
			Expect(cerr.Expected).To(Equal(int64(0)))
			Expect(cerr.Actual).To(Equal(int64(1)))
		})

		It("S1: exactly one of two concurrent writers wins version 1", func() {
			aggID := newAggregateID("user")
			var wg sync.WaitGroup
			results := make([]error, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := store.PushWithConcurrencyCheck(ctx, []eventstore.Cmd{
						eventstore.NewCmd("user.created", "user", aggID, []byte(`{}`), "editor1", "org1", "inst1"),
					}, 0)
					results[i] = err
				}(i)
			}
			wg.Wait()

			successes, failures := 0, 0
			for _, err := range results {
				if err == nil {
					successes++
				} else {
					Expect(eventstore.IsConcurrencyError(err)).To(BeTrue())
					failures++
				}
			}
			Expect(successes).To(Equal(1))
			Expect(failures).To(Equal(1))
		})

		It("rejects a batch exceeding maxPushBatchSize", func() {
			cfg := eventstore.DefaultConfig()
			cfg.MaxPushBatchSize = 2
			small, err := eventstore.New(ctx, pool, ids, cfg)
			Expect(err).NotTo(HaveOccurred())
			defer small.Close()

			aggID := newAggregateID("user")
			cmds := make([]eventstore.Cmd, 3)
			for i := range cmds {
				cmds[i] = eventstore.NewCmd("user.created", "user", aggID, []byte(`{}`), "editor1", "org1", "inst1")
			}
			_, err = small.PushMany(ctx, cmds)
			Expect(eventstore.IsValidationError(err)).To(BeTrue())
		})

		It("rejects a batch mixing aggregate types", func() {
			_, err := store.PushMany(ctx, []eventstore.Cmd{
				eventstore.NewCmd("user.created", "user", "u1", []byte(`{}`), "editor1", "org1", "inst1"),
				eventstore.NewCmd("org.added", "org", "o1", []byte(`{}`), "editor1", "org1", "inst1"),
			})
			Expect(eventstore.IsValidationError(err)).To(BeTrue())
		})
	})

	Describe("EventsAfterPosition", func() {
		It("returns events strictly after pos in ascending order", func() {
			aggID := newAggregateID("user")
			e1, err := store.Push(ctx, eventstore.NewCmd("user.created", "user", aggID, []byte(`{}`), "e", "org1", "inst1"))
			Expect(err).NotTo(HaveOccurred())
			e2, err := store.Push(ctx, eventstore.NewCmd("user.profile.changed", "user", aggID, []byte(`{}`), "e", "org1", "inst1"))
			Expect(err).NotTo(HaveOccurred())

			after, err := store.EventsAfterPosition(ctx, "inst1", e1.Position, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(after)).To(BeNumerically(">=", 1))
			Expect(after[0].ID).To(Equal(e2.ID))
		})
	})

	Describe("Aggregate", func() {
		It("returns the full event history for one aggregate", func() {
			aggID := newAggregateID("user")
			_, err := store.PushMany(ctx, []eventstore.Cmd{
				eventstore.NewCmd("user.created", "user", aggID, []byte(`{}`), "e", "org1", "inst1"),
				eventstore.NewCmd("user.profile.changed", "user", aggID, []byte(`{}`), "e", "org1", "inst1"),
			})
			Expect(err).NotTo(HaveOccurred())

			agg, err := store.Aggregate(ctx, "user", aggID, "inst1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(agg.Version).To(Equal(int64(2)))
			Expect(agg.Events).To(HaveLen(2))
		})
	})
})

func setupTestDatabase(ctx context.Context) (*pgxpool.Pool, testcontainers.Container, string, error) {
	password, err := generateRandomPassword(16)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to generate password: %w", err)
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17.5-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": password,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, "", err
	}

	host, err := postgresC.Host(ctx)
	if err != nil {
		return nil, nil, "", err
	}

	port, err := postgresC.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, "", err
	}

	dsn := fmt.Sprintf("postgres://postgres:%s@%s:%s/postgres?sslmode=disable", password, host, port.Port())
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, "", err
	}
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe

	p, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, "", err
	}
	return p, postgresC, dsn, nil
}

func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
