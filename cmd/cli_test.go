package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bnema/repx/internal/domain"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandPrintsBinaryName(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "repx "))
}

func TestUnknownCommandIsRejected(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "usage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command \"usage\"")
}

func TestAccountListShowsConfiguredAccounts(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	stdout, _, err := executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alice\tAlice")
	assert.Contains(t, stdout, "bob")
}

func TestAccountAddThenListJSON(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "account", "add", "carol", "--nickname", "Carol")
	require.NoError(t, err)
	assert.Contains(t, stdout, "added carol")
	assert.Contains(t, stdout, "carol/refresh_token")

	stdout, _, err = executeCLI(t, home, "account", "list", "--json")
	require.NoError(t, err)

	var listed []map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "carol", listed[0]["username"])
	assert.Equal(t, "Carol", listed[0]["nickname"])
}

func TestAccountAddRejectsDuplicate(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "account", "add", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestAccountRemoveDropsAccountAndState(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	require.NoError(t, writeStateFixture(home, time.Now().Add(time.Hour)))

	stdout, _, err := executeCLI(t, home, "account", "remove", "alice")
	require.NoError(t, err)
	assert.Contains(t, stdout, "removed alice")

	stdout, _, err = executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "alice")

	state, err := os.ReadFile(filepath.Join(home, ".repx", "state.toml"))
	require.NoError(t, err)
	assert.NotContains(t, string(state), "alice")
}

func TestAccountRemoveUnknownAccount(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "account", "remove", "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountImportMovesSecretsIntoStore(t *testing.T) {
	home := t.TempDir()
	withoutPass(t)

	importFile := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(importFile, []byte(`- username: dave
  nickname: Dave
  password: hunter2
  refresh_token: rt-dave
- account_name: erin
  shared_secret: c2VjcmV0
`), 0o600))

	stdout, _, err := executeCLI(t, home, "account", "import", importFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "imported dave")
	assert.Contains(t, stdout, "imported erin")

	accounts, err := os.ReadFile(filepath.Join(home, ".repx", "accounts.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(accounts), "dave/password")
	assert.Contains(t, string(accounts), "erin/shared_secret")
	assert.NotContains(t, string(accounts), "hunter2")

	token, err := os.ReadFile(filepath.Join(home, ".repx", "secrets", "dave", "refresh_token"))
	require.NoError(t, err)
	assert.Equal(t, "rt-dave", strings.TrimSpace(string(token)))
}

func TestAccountImportAcceptsSingleMaFile(t *testing.T) {
	home := t.TempDir()
	withoutPass(t)

	maFile := filepath.Join(t.TempDir(), "frank.maFile")
	require.NoError(t, os.WriteFile(maFile, []byte(`{"account_name":"frank","shared_secret":"abc=","identity_secret":"ignored"}`), 0o600))

	stdout, _, err := executeCLI(t, home, "account", "import", maFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "imported frank")

	stdout, _, err = executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "frank")
}

func TestAuthSetReadsTokenFromStdin(t *testing.T) {
	home := t.TempDir()
	withoutPass(t)
	require.NoError(t, writeAccountsFixture(home))

	root := newRootCmdForTest(t, home)
	root.SetIn(strings.NewReader("rt-from-stdin\n"))
	root.SetArgs([]string{"auth", "set", "--account", "alice", "--refresh-token", "-"})
	require.NoError(t, root.Execute())

	token, err := os.ReadFile(filepath.Join(home, ".repx", "secrets", "alice", "refresh_token"))
	require.NoError(t, err)
	assert.Equal(t, "rt-from-stdin", strings.TrimSpace(string(token)))

	_, _, err = executeCLI(t, home, "auth", "remove", "--account", "alice")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, ".repx", "secrets", "alice", "refresh_token"))
	assert.True(t, os.IsNotExist(err))
}

func TestAuthSetRequiresRefreshTokenFlag(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "auth", "set", "--account", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"refresh-token\" not set")
}

func TestAuthSetRejectsUnknownAccount(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "auth", "set", "--account", "nobody", "--refresh-token", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStatusRendersEveryAccount(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Rep4Rep Accounts")
	assert.Contains(t, stdout, "accounts: 2")
	assert.Contains(t, stdout, "Alice (alice)")
	assert.Contains(t, stdout, "bob")
}

func TestStatusByAccountJSONOutput(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	stdout, _, err := executeCLI(t, home, "status", "--account", "alice", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"username\": \"alice\"")
	assert.NotContains(t, stdout, "\"username\": \"bob\"")
}

func TestStatusUnknownAccount(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "status", "--account", "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStatusShowsCooldownFromState(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	require.NoError(t, writeStateFixture(home, time.Now().Add(3*time.Hour+30*time.Minute)))

	stdout, _, err := executeCLI(t, home, "status", "--account", "alice")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ready in 4 hours")
}

func TestClearCooldownResetsAccount(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))
	require.NoError(t, writeStateFixture(home, time.Now().Add(5*time.Hour)))

	stdout, _, err := executeCLI(t, home, "account", "clear-cooldown", "alice")
	require.NoError(t, err)
	assert.Contains(t, stdout, "cleared alice")

	stdout, _, err = executeCLI(t, home, "status", "--account", "alice")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "ready in")
}

func TestClearCooldownNeedsTarget(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "account", "clear-cooldown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a username or --all")
}

func TestRunRequiresAPIKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("REPX_REP4REP_API_KEY", "")
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rep4rep api key is not configured")
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmdForTest(t, home)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func newRootCmdForTest(t *testing.T, home string) *cobra.Command {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv(configFileEnv, "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root
}

// withoutPass hides the pass binary so secrets land in the file store.
func withoutPass(t *testing.T) {
	t.Helper()
	t.Setenv("PATH", t.TempDir())
}

func writeAccountsFixture(home string) error {
	configDir := filepath.Join(home, ".repx")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return err
	}

	accounts := `version = 1

[[accounts]]
username = "alice"
nickname = "Alice"

[[accounts]]
username = "bob"
`

	return os.WriteFile(filepath.Join(configDir, "accounts.toml"), []byte(accounts), 0o600)
}

func writeStateFixture(home string, cooldownUntil time.Time) error {
	configDir := filepath.Join(home, ".repx")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return err
	}

	now := time.Now()
	state := "version = 1\n\n" +
		"[markers]\n" +
		"last_reset_date = \"" + domain.DayKey(now) + "\"\n" +
		"last_weekly_reset = " + strconv.Itoa(domain.WeekNumber(now)) + "\n\n" +
		"[[accounts]]\n" +
		"username = \"alice\"\n" +
		"cooldown_until = " + strconv.FormatInt(domain.UnixMillis(cooldownUntil), 10) + "\n" +
		"completed_today = 3\n" +
		"completed_this_week = 7\n" +
		"total_completed = 40\n"

	return os.WriteFile(filepath.Join(configDir, "state.toml"), []byte(state), 0o600)
}
