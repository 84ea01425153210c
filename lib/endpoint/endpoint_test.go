package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/go-sam-session/lib/client"
	"github.com/go-i2p/go-sam-session/lib/samtest"
	"github.com/go-i2p/go-sam-session/lib/session"
	"github.com/go-i2p/go-sam-session/lib/util"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "tcp:127.0.0.1:7656", false},
		{"tcp:127.0.0.1:7656", "tcp:127.0.0.1:7656", false},
		{"TCP:router.lan:7657", "tcp:router.lan:7657", false},
		{"127.0.0.1:7656", "tcp:127.0.0.1:7656", false},
		{`tcp\:10.0.0.2\:7656`, "tcp:10.0.0.2:7656", false},
		{"[::1]:7656", "tcp:[::1]:7656", false},
		{"tcp:[::1]:7656", "tcp:[::1]:7656", false},
		{"  localhost:7656 ", "tcp:localhost:7656", false},
		{"unix:/run/sam.sock:1", "", true},
		{"ssl:host:7656", "", true},
		{"tcp:localhost", "", true},
		{"localhost", "", true},
		{":7656", "", true},
		{"host:0", "", true},
		{"host:70000", "", true},
		{"host:http", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDescriptor(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, util.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestDescriptor_Address(t *testing.T) {
	assert.Equal(t, "127.0.0.1:7656", DefaultSAMEndpoint.Address())
	assert.Equal(t, "[::1]:7656", Descriptor{Host: "::1", Port: 7656}.Address())
}

func TestResolveAPI(t *testing.T) {
	tests := []struct {
		name     string
		api      string
		endpoint string
		want     string
		wantErr  bool
	}{
		{"all defaults", "", "", "tcp:127.0.0.1:7656", false},
		{"explicit SAM", "SAM", "", "tcp:127.0.0.1:7656", false},
		{"lowercase sam", "sam", "tcp:10.0.0.1:7656", "tcp:10.0.0.1:7656", false},
		{"endpoint without api", "", "tcp:10.0.0.1:7656", "", true},
		{"BOB", "BOB", "", "", true},
		{"unknown", "I2CP", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ResolveAPI(tt.api, tt.endpoint)
			if tt.wantErr {
				assert.ErrorIs(t, err, util.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func newTestManager(t *testing.T) (*Manager, *samtest.Router) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	router := samtest.NewRouter()
	t.Cleanup(router.Close)

	opener := client.NewOpener(nil, client.WithDialer(client.DialFunc(router.Dial)), client.WithLogger(logger))
	registry := session.NewRegistry(opener, session.WithLogger(logger))
	t.Cleanup(func() { _ = registry.Close() })
	return NewManager(registry, logger), router
}

func TestManager_LeasesShareSession(t *testing.T) {
	m, router := newTestManager(t)
	ctx := context.Background()

	a, err := m.Acquire(ctx, Params{Nickname: "alice"})
	require.NoError(t, err)
	b, err := m.Acquire(ctx, Params{API: "SAM", Endpoint: "127.0.0.1:7656", Nickname: "alice"})
	require.NoError(t, err)

	assert.Same(t, a.Session(), b.Session())
	assert.Equal(t, 2, a.Session().StreamCount())
	assert.Equal(t, 1, router.Creates())
	assert.Equal(t, "abcd...xyz", a.Session().Destination())
	assert.Equal(t, "tcp:127.0.0.1:7656", a.Session().Endpoint())

	require.NoError(t, a.Release())
	require.NoError(t, a.Release(), "Release must be idempotent")
	assert.Equal(t, 1, b.Session().StreamCount())
	assert.True(t, router.Active("alice"))

	require.NoError(t, b.Release())
	assert.Equal(t, session.StatusClosed, b.Session().Status())
	assert.Zero(t, m.Registry().Count())
	require.Eventually(t, func() bool { return !router.Active("alice") }, time.Second, time.Millisecond)
}

func TestManager_AcquireStream(t *testing.T) {
	m, router := newTestManager(t)
	ctx := context.Background()
	stream := new(int)

	s, err := m.AcquireStream(ctx, Params{Nickname: "bob", Options: map[string]string{"inbound.length": "1"}}, stream)
	require.NoError(t, err)
	assert.Equal(t, "SESSION CREATE STYLE=STREAM ID=bob DESTINATION=TRANSIENT inbound.length=1", router.Received()[0])

	assert.ErrorIs(t, m.Release(s, new(int)), session.ErrNotAttached)
	require.NoError(t, m.Release(s, stream))
	assert.Zero(t, m.Registry().Count())
}

func TestManager_InvalidParams(t *testing.T) {
	m, router := newTestManager(t)

	_, err := m.Acquire(context.Background(), Params{API: "BOB", Nickname: "alice"})
	assert.ErrorIs(t, err, util.ErrValidation)

	_, err = m.Acquire(context.Background(), Params{Endpoint: "tcp:127.0.0.1:7656", Nickname: "alice"})
	assert.ErrorIs(t, err, util.ErrValidation)

	assert.Zero(t, router.Dials())
}

func TestManager_FailurePropagates(t *testing.T) {
	m, router := newTestManager(t)
	router.CreateResult = "INVALID_KEY"

	_, err := m.Acquire(context.Background(), Params{Nickname: "alice"})
	require.ErrorIs(t, err, util.ErrInvalidKey)
	assert.True(t, util.IsPermanent(err))
	assert.Zero(t, m.Registry().Count())
}
