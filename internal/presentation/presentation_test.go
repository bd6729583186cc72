package presentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/ledger/application"
	"github.com/zjrosen/register/internal/ledger/domain"
)

func TestFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).Format(map[string]int{"a": 1}))
	require.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestFromDomainRegisters_EmptyIsNotNull(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).Format(FromDomainRegisters(nil)))
	require.Equal(t, "[]\n", buf.String())
}

func TestFromDomainRegister(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	r := domain.NewRegister("r1", "Ledger", "t1", false, true, now)
	r.Height = 3

	dto := FromDomainRegister(r)
	require.Equal(t, "r1", dto.ID)
	require.Equal(t, uint64(3), dto.Height)
	require.Equal(t, "offline", dto.Status)
	require.True(t, dto.IsFullReplica)
}

func TestFromVerification(t *testing.T) {
	ok := FromVerification(&application.ChainVerification{RegisterID: "r1", Height: 2, SealedDockets: 2})
	require.True(t, ok.Valid)
	require.Nil(t, ok.Issue)

	bad := FromVerification(&application.ChainVerification{
		RegisterID: "r1",
		Issue:      &application.ChainIssue{DocketID: 2, Kind: application.ChainIssueBrokenLink, Detail: "d"},
	})
	require.False(t, bad.Valid)
	require.Equal(t, "broken_link", bad.Issue.Kind)

	raw, err := json.Marshal(ok)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "issue")
}

func TestFromChainResults(t *testing.T) {
	dtos := FromChainResults([]app.ChainResult{
		{RegisterID: "r1", Verification: &application.ChainVerification{RegisterID: "r1", Height: 1, SealedDockets: 1}},
		{RegisterID: "r2", Err: errors.New("verify chain: register not found: r2")},
	})
	require.Len(t, dtos, 2)
	require.True(t, dtos[0].Valid)
	require.Equal(t, "r2", dtos[1].RegisterID)
	require.False(t, dtos[1].Valid)
	require.Contains(t, dtos[1].Error, "not found")
}

func TestFromWalk_ForksAlwaysPresent(t *testing.T) {
	dto := FromWalk(&application.ChainWalk{Path: []string{"a"}, Tip: "a"})
	raw, err := json.Marshal(dto)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"forks":[]`)

	dto = FromWalk(&application.ChainWalk{
		Path:  []string{"a", "b"},
		Forks: []application.ChainFork{{TxID: "a", Successors: []string{"b", "c"}}},
	})
	require.Equal(t, []ForkDTO{{TxID: "a", Successors: []string{"b", "c"}}}, dto.Forks)
}

func TestFromStatistics(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	dto := FromStatistics(&application.TransactionStatistics{
		RegisterID: "r1", TotalTransactions: 2, TotalPayloads: 3, EarliestTransaction: &at,
	})
	require.Equal(t, 2, dto.TotalTransactions)
	require.Equal(t, uint64(3), dto.TotalPayloads)
	require.Equal(t, &at, dto.EarliestTransaction)
	require.Nil(t, dto.LatestTransaction)
}
