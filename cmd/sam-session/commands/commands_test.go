package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/go-sam-session/lib/client"
	"github.com/go-i2p/go-sam-session/lib/config"
	"github.com/go-i2p/go-sam-session/lib/samtest"
)

func noEnv(string) string { return "" }

func run(t *testing.T, f *flags, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(f)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"inbound.length=1", "i2cp.leaseSetEncType=4,0", "inbound.length=2", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"inbound.length":       "2",
		"i2cp.leaseSetEncType": "4,0",
		"empty":                "",
	}, opts)

	for _, bad := range []string{"novalue", "=x", " =x"} {
		_, err := parseOptions([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestNewRootCmd(t *testing.T) {
	root := newRootCmd(&flags{getenv: noEnv})
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"create", "version"}, names)
	for _, name := range []string{"config", "sam", "nickname", "keyfile", "strict-keyfile", "option", "min-version", "max-version", "metrics-addr", "debug"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, &flags{getenv: noEnv}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sam-session "+Version)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sam-session.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
sam = "tcp:10.0.0.1:7656"
nickname = "fromfile"
keyfile = "file.dat"

[options]
"inbound.length" = "1"
`), 0o644))

	env := map[string]string{config.EnvSAMAddr: "tcp:10.0.0.2:7656"}
	f := &flags{getenv: func(k string) string { return env[k] }}
	root := newRootCmd(f)
	require.NoError(t, root.ParseFlags([]string{
		"--config", path,
		"--nickname", "fromflag",
		"--option", "inbound.length=2",
	}))

	cfg, err := f.loadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, "tcp:10.0.0.2:7656", cfg.SAMAddr, "env overrides file")
	assert.Equal(t, "fromflag", cfg.Nickname, "flag overrides file")
	assert.Equal(t, "file.dat", cfg.KeyFile, "unset flag keeps file value")
	assert.Equal(t, "2", cfg.Options["inbound.length"])
}

func TestLoadConfig_Invalid(t *testing.T) {
	f := &flags{getenv: noEnv}
	root := newRootCmd(f)
	require.NoError(t, root.ParseFlags([]string{"--sam", "nowhere"}))
	_, err := f.loadConfig(root)
	var ce *config.ConfigError
	assert.ErrorAs(t, err, &ce)

	f = &flags{getenv: noEnv}
	root = newRootCmd(f)
	require.NoError(t, root.ParseFlags([]string{"--option", "DESTINATION=x"}))
	_, err = f.loadConfig(root)
	assert.Error(t, err)
}

func TestCreateCmd_NoWait(t *testing.T) {
	router := samtest.NewRouter()
	t.Cleanup(router.Close)

	f := &flags{getenv: noEnv, dialer: client.DialFunc(router.Dial)}
	out, err := run(t, f, "create", "--nickname", "alice", "--option", "inbound.length=1", "--no-wait")
	require.NoError(t, err)

	assert.Contains(t, out, "nickname: alice\n")
	assert.Contains(t, out, "destination: "+router.Destination+"\n")
	assert.Equal(t, "SESSION CREATE STYLE=STREAM ID=alice DESTINATION=TRANSIENT inbound.length=1", router.Received()[0])
	require.Eventually(t, func() bool { return !router.Active("alice") }, time.Second, time.Millisecond)
}

func TestCreateCmd_RouterRejects(t *testing.T) {
	router := samtest.NewRouter()
	t.Cleanup(router.Close)
	router.CreateResult = "I2P_ERROR"

	f := &flags{getenv: noEnv, dialer: client.DialFunc(router.Dial)}
	out, err := run(t, f, "create", "--nickname", "alice", "--no-wait")
	assert.Error(t, err)
	assert.NotContains(t, out, "destination:")
}
