package query

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicolaslara/dao-contracts/config"
	"github.com/nicolaslara/dao-contracts/proposal/api"
)

func TestReadInput(t *testing.T) {
	require := require.New(t)

	msg := `{"config":{}}`
	raw, err := readInput(nil, strings.NewReader(msg))
	require.NoError(err)
	require.Equal(msg, string(raw), "no argument reads stdin")

	raw, err = readInput([]string{stdinArg}, strings.NewReader(msg))
	require.NoError(err)
	require.Equal(msg, string(raw), "dash reads stdin")

	path := filepath.Join(t.TempDir(), "query.json")
	require.NoError(os.WriteFile(path, []byte(msg), 0o600))
	raw, err = readInput([]string{path}, strings.NewReader("ignored"))
	require.NoError(err)
	require.Equal(msg, string(raw), "file argument")

	_, err = readInput([]string{filepath.Join(t.TempDir(), "missing.json")}, nil)
	require.Error(err, "missing file")
}

func TestBuildQueryMsg(t *testing.T) {
	require := require.New(t)

	for _, tc := range []struct {
		kind     string
		args     []string
		expected string
		msg      string
	}{
		{api.KindConfig, nil, `{"config":{}}`, "config"},
		{api.KindProposal, []string{"--proposal-id", "3"}, `{"proposal":{"proposal_id":3}}`, "proposal"},
		{api.KindListProposals, nil, `{"list_proposals":{}}`, "list without options"},
		{api.KindListProposals, []string{"--limit", "10", "--start-after", "5"}, `{"list_proposals":{"limit":10,"start_after":5}}`, "list with options"},
		{api.KindReverseProposals, []string{"--start-before", "9"}, `{"reverse_proposals":{"start_before":9}}`, "reverse"},
		{api.KindProposalCount, nil, `{"proposal_count":{}}`, "count"},
		{api.KindVote, []string{"--proposal-id", "42", "--voter", "addr1"}, `{"vote":{"proposal_id":42,"voter":"addr1"}}`, "vote"},
		{api.KindListVotes, []string{"--proposal-id", "1", "--start-after", "addr1"}, `{"list_votes":{"proposal_id":1,"start_after":"addr1"}}`, "list votes"},
		{api.KindInfo, nil, `{"info":{}}`, "info"},
	} {
		fs := newEncodeFlags()
		require.NoError(fs.Parse(tc.args), tc.msg)

		qm, err := buildQueryMsg(tc.kind, fs)
		require.NoError(err, tc.msg)

		var buf bytes.Buffer
		require.NoError(writeQueryMsg(context.Background(), &buf, qm, false), tc.msg)
		require.JSONEq(tc.expected, buf.String(), tc.msg)
	}

	for _, tc := range []struct {
		kind string
		args []string
		msg  string
	}{
		{api.KindProposal, nil, "proposal without id"},
		{api.KindVote, []string{"--proposal-id", "1"}, "vote without voter"},
		{api.KindListVotes, []string{"--limit", "3"}, "list votes without id"},
		{api.KindListProposals, []string{"--start-after", "addr1"}, "non-numeric cursor"},
		{"votes", nil, "unknown kind"},
	} {
		fs := newEncodeFlags()
		require.NoError(fs.Parse(tc.args), tc.msg)

		_, err := buildQueryMsg(tc.kind, fs)
		require.Error(err, tc.msg)
	}
}

func TestWriteResponse(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	block := &api.BlockInfo{Height: 10, Time: 1, ChainID: "juno-1"}

	var buf bytes.Buffer
	require.NoError(writeResponse(ctx, &buf, api.KindVote, []byte(`{"vote":null}`), nil))
	require.JSONEq(`{"vote":null}`, buf.String(), "plain output is JSON")

	buf.Reset()
	require.NoError(writeResponse(ctx, &buf, api.KindVote, []byte(`{"vote":null}`), block))
	require.Equal("No vote.\n", buf.String())

	buf.Reset()
	require.NoError(writeResponse(ctx, &buf, api.KindProposalCount, []byte(`7`), block))
	require.Equal("Proposal count: 7\n", buf.String())

	buf.Reset()
	rsp := `{"votes":[{"voter":"addr1","vote":"yes","power":"5"}]}`
	require.NoError(writeResponse(ctx, &buf, api.KindListVotes, []byte(rsp), block))
	require.Equal("addr1: yes (power 5)\n", buf.String())

	buf.Reset()
	rsp = `{"info":{"contract":"crates.io:cw-proposal-single","version":"0.1.0"}}`
	require.NoError(writeResponse(ctx, &buf, api.KindInfo, []byte(rsp), block))
	require.Contains(buf.String(), "crates.io:cw-proposal-single")

	require.Error(writeResponse(ctx, &buf, api.KindConfig, []byte(`{`), nil), "malformed JSON")
	require.Error(writeResponse(ctx, &buf, api.KindProposal, []byte(`[]`), block), "wrong shape")
}

func TestLimitsFromConfig(t *testing.T) {
	require := require.New(t)

	cfg := config.QueryConfig{DefaultLimit: 5, MaxLimit: 7}
	limits := LimitsFromConfig(&cfg)
	require.EqualValues(5, limits.Default)
	require.EqualValues(7, limits.Max)
}
