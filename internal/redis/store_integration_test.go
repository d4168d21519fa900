//go:build integration

package redis

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type StoreTestSuite struct {
	suite.Suite
	container testcontainers.Container
	client    *redis.Client
	locks     *LockStore
	responses *ResponseStore
	ctx       context.Context
}

func (s *StoreTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	s.container = container

	addr, err := container.Endpoint(s.ctx, "")
	if err != nil {
		log.Fatal(err)
	}

	s.client = redis.NewClient(&redis.Options{Addr: addr})
	s.locks = NewLockStore(s.client)
	s.responses = NewResponseStore(s.client)
}

func (s *StoreTestSuite) TearDownSuite() {
	s.client.Close()
	if err := s.container.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating redis container: %s", err)
	}
}

func (s *StoreTestSuite) SetupTest() {
	require.NoError(s.T(), s.client.FlushDB(s.ctx).Err())
}

func (s *StoreTestSuite) TestAcquirePaymentLock_Exclusive() {
	t := s.T()

	token, acquired, err := s.locks.AcquirePaymentLock(s.ctx, "pay123", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.NotEmpty(t, token)

	_, acquired, err = s.locks.AcquirePaymentLock(s.ctx, "pay123", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, s.locks.ReleasePaymentLock(s.ctx, "pay123", token))

	_, acquired, err = s.locks.AcquirePaymentLock(s.ctx, "pay123", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func (s *StoreTestSuite) TestReleasePaymentLock_KeepsLockTakenOverAfterExpiry() {
	t := s.T()

	staleToken, acquired, err := s.locks.AcquirePaymentLock(s.ctx, "pay123", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(200 * time.Millisecond)

	currentToken, acquired, err := s.locks.AcquirePaymentLock(s.ctx, "pay123", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, s.locks.ReleasePaymentLock(s.ctx, "pay123", staleToken))

	held, err := s.client.Get(s.ctx, paymentLockKey("pay123")).Result()
	require.NoError(t, err)
	assert.Equal(t, currentToken, held)
}

func (s *StoreTestSuite) TestResponseStore_MissReturnsNil() {
	data, err := s.responses.Get(s.ctx, "idempotency:u1:missing")
	require.NoError(s.T(), err)
	assert.Nil(s.T(), data)
}

func (s *StoreTestSuite) TestResponseStore_SetThenGet() {
	t := s.T()

	require.NoError(t, s.responses.Set(s.ctx, "idempotency:u1:intent-1", []byte(`{"status":201}`), time.Minute))

	data, err := s.responses.Get(s.ctx, "idempotency:u1:intent-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"status":201}`), data)

	ttl, err := s.client.TTL(s.ctx, "idempotency:u1:intent-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
