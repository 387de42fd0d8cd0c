package command_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"iamcore/internal/command"
	"iamcore/internal/projection"
	"iamcore/internal/readmodel"
	"iamcore/internal/readmodel/reducers"
	"iamcore/internal/store/migrations"
	"iamcore/pkg/eventstore"
	"iamcore/pkg/idgen"
	"iamcore/pkg/txstore"
)

// TestDomainVerificationFlow exercises spec §8 S6 end to end: an org is
// created, a domain is added/verified/promoted to primary, and after the
// org projection catches up, getOrgByDomainGlobal and getOrgByID agree.
func TestDomainVerificationFlow(t *testing.T) {
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
	users := readmodel.NewUserQueries(store)
	orgs := readmodel.NewOrgQueries(store)
	projs := readmodel.NewProjectQueries(store)
	apps := readmodel.NewAppQueries(store)

	cmds := command.New(es, ids, users, orgs, projs, apps)

	orgReducer := reducers.NewOrgReducer(store)
	require.NoError(t, orgReducer.Init(ctx))
	cfg := projection.DefaultConfig("orgs")
	handler := projection.NewHandler(cfg, store, es, orgReducer)
	require.NoError(t, handler.Start(ctx))
	defer handler.Stop()

	cc := command.CommandContext{InstanceID: "inst1", OrgID: "", UserID: "admin1"}

	orgID, err := cmds.AddOrganization(ctx, cc, "Acme")
	require.NoError(t, err)

	require.NoError(t, cmds.AddOrganizationDomain(ctx, cc, orgID, "acme.test"))
	require.NoError(t, cmds.VerifyOrganizationDomain(ctx, cc, orgID, "acme.test"))
	lastEvent, found, err := es.LatestEvent(ctx, "org", orgID, "inst1")
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, cmds.SetPrimaryOrganizationDomain(ctx, cc, orgID, "acme.test"))
	lastEvent, found, err = es.LatestEvent(ctx, "org", orgID, "inst1")
	require.NoError(t, err)
	require.True(t, found)

	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	for {
		if !handler.Position().Less(lastEvent.Position) {
			break
		}
		select {
		case <-waitCtx.Done():
			t.Fatal("projection did not catch up in time")
		case <-time.After(20 * time.Millisecond):
		}
	}

	found_, ok, err := orgs.GetByDomainGlobal(ctx, "inst1", "acme.test")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, orgID, found_.ID)

	byID, ok, err := orgs.GetByID(ctx, "inst1", orgID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "acme.test", byID.PrimaryDomain)
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
