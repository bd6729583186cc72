package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/testutil"
)

// syncBuffer lets the test read output while serve is still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// scrape returns the metrics page, or "" while the server is unreachable.
func scrape(addr string) string {
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return string(body)
}

func TestServe_AuditsOnStartAndOnWrite(t *testing.T) {
	dir := isolate(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve", "--metrics-addr", "127.0.0.1:0", "--interval", "0", "--debounce", "20ms"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "audit (start): 0 register(s), 0 invalid")
	}, 5*time.Second, 10*time.Millisecond)

	first, _, _ := strings.Cut(out.String(), "\n")
	addr := strings.TrimPrefix(first, "serving metrics on ")

	a := openCore(t, dir)
	reg, err := a.Registers.CreateRegister(ctx, "Watched", "acme")
	require.NoError(t, err)
	tx, err := a.Transactions.StoreTransaction(ctx, testutil.NewTx(reg.ID, "a"))
	require.NoError(t, err)
	d, err := a.Dockets.CreateDocket(ctx, reg.ID, []string{tx.TxID})
	require.NoError(t, err)
	_, err = a.Dockets.ProposeDocket(ctx, d)
	require.NoError(t, err)
	_, err = a.Dockets.SealDocket(ctx, d)
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	require.Eventually(t, func() bool {
		body := scrape(addr)
		return strings.Contains(body, `register_chain_valid{register="`+reg.ID+`"} 1`) &&
			strings.Contains(body, `register_register_height{register="`+reg.ID+`"} 1`)
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "audit (write): 1 register(s), 0 invalid")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_RejectsBadOptions(t *testing.T) {
	isolate(t)
	_, err := run(t, "serve", "--parallel", "0")
	require.ErrorContains(t, err, "--parallel")
	_, err = run(t, "serve", "--interval", "-1s")
	require.ErrorContains(t, err, "--interval")
}

func TestServe_FollowLog(t *testing.T) {
	isolate(t)
	t.Setenv("REGISTER_LOG_ENABLED", "true")
	t.Setenv("REGISTER_LOG_PATH", "-")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve", "--metrics-addr", "127.0.0.1:0", "--interval", "0", "--follow-log"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[INFO] [docket] chain audit reason=start registers=0 invalid=0")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_FollowLogNeedsLogging(t *testing.T) {
	isolate(t)
	_, err := run(t, "serve", "--follow-log")
	require.ErrorContains(t, err, "log.enabled")
}
