package state

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicolaslara/dao-contracts/common/encoding/bech32"
	"github.com/nicolaslara/dao-contracts/common/errors"
	"github.com/nicolaslara/dao-contracts/common/quantity"
	"github.com/nicolaslara/dao-contracts/proposal/api"
)

func testAddress(t *testing.T, b byte) string {
	addr, err := bech32.Encode("juno", bytes.Repeat([]byte{b}, 20))
	require.NoError(t, err)
	return addr
}

func writeGenesis(t *testing.T, g *api.Genesis) string {
	raw, err := json.Marshal(g)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func testGenesis(t *testing.T) *api.Genesis {
	threshold := api.Threshold{
		AbsolutePercentage: &api.AbsolutePercentage{Percentage: api.NewMajority()},
	}
	vi := api.VoteInfo{Voter: testAddress(t, 0x10), Vote: api.VoteAbstain, Power: *quantity.NewFromUint64(2)}
	p := api.Proposal{
		Title:      "Fund the treasury",
		Proposer:   testAddress(t, 0x03),
		Expiration: api.ExpiresNever(),
		Threshold:  threshold,
		TotalPower: *quantity.NewFromUint64(10),
		Status:     api.StatusOpen,
	}
	require.NoError(t, p.Votes.Add(vi.Vote, &vi.Power))

	return &api.Genesis{
		Contract: testAddress(t, 0x01),
		Block:    api.BlockInfo{Height: 77, Time: 1, ChainID: "juno-1"},
		Config: api.Config{
			Threshold:       threshold,
			MaxVotingPeriod: api.Duration{Height: new(uint64)},
			DAO:             testAddress(t, 0x02),
		},
		Info: api.ContractVersion{
			Contract: "crates.io:cw-proposal-single",
			Version:  "0.1.0",
		},
		Proposals: []api.ProposalResponse{{ID: 1, Proposal: p}},
		Ballots:   map[uint64][]api.VoteInfo{1: {vi}},
	}
}

func TestLoadGenesis(t *testing.T) {
	require := require.New(t)

	g, err := loadGenesis(writeGenesis(t, testGenesis(t)))
	require.NoError(err, "loadGenesis")
	require.Len(g.Proposals, 1)
	require.Len(g.Ballots[1], 1)

	var buf bytes.Buffer
	writeSummary(&buf, g)
	require.Contains(buf.String(), "Proposals:      1")
	require.Contains(buf.String(), "Ballots:        1")
	require.Contains(buf.String(), "77 (juno-1)")

	bad := testGenesis(t)
	bad.Contract = "nope"
	_, err = loadGenesis(writeGenesis(t, bad))
	require.True(errors.Is(err, api.ErrInvalidGenesis), "bad contract address")

	path := filepath.Join(t.TempDir(), "garbage.json")
	require.NoError(os.WriteFile(path, []byte("{"), 0o600))
	_, err = loadGenesis(path)
	require.Error(err, "malformed genesis")

	_, err = loadGenesis(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(err, "missing genesis")
}

func TestParseBlock(t *testing.T) {
	require := require.New(t)

	current := &api.BlockInfo{Height: 1, Time: 1, ChainID: "juno-1"}

	block, err := parseBlock([]string{"100", "2000"}, current)
	require.NoError(err)
	require.Equal(api.BlockInfo{Height: 100, Time: 2000, ChainID: "juno-1"}, *block)

	_, err = parseBlock([]string{"x", "2000"}, current)
	require.Error(err, "bad height")
	_, err = parseBlock([]string{"100", "-1"}, current)
	require.Error(err, "bad time")
}
