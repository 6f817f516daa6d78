package node

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicolaslara/dao-contracts/common/encoding/bech32"
	"github.com/nicolaslara/dao-contracts/common/errors"
	"github.com/nicolaslara/dao-contracts/common/grpc"
	"github.com/nicolaslara/dao-contracts/common/quantity"
	"github.com/nicolaslara/dao-contracts/config"
	"github.com/nicolaslara/dao-contracts/proposal/api"
	"github.com/nicolaslara/dao-contracts/proposal/state"
)

func testAddress(t *testing.T, b byte) string {
	addr, err := bech32.Encode("juno", bytes.Repeat([]byte{b}, 20))
	require.NoError(t, err)
	return addr
}

func importTestGenesis(t *testing.T, dataDir string) {
	threshold := api.Threshold{
		AbsolutePercentage: &api.AbsolutePercentage{Percentage: api.NewMajority()},
	}
	g := &api.Genesis{
		Contract: testAddress(t, 0x01),
		Block:    api.BlockInfo{Height: 10, Time: 1, ChainID: "juno-1"},
		Config: api.Config{
			Threshold:       threshold,
			MaxVotingPeriod: api.Duration{Height: new(uint64)},
			DAO:             testAddress(t, 0x02),
		},
		Info: api.ContractVersion{
			Contract: "crates.io:cw-proposal-single",
			Version:  "0.1.0",
		},
	}
	for id := uint64(1); id <= 3; id++ {
		g.Proposals = append(g.Proposals, api.ProposalResponse{
			ID: id,
			Proposal: api.Proposal{
				Title:      "Proposal",
				Proposer:   testAddress(t, 0x03),
				Expiration: api.ExpiresAtHeight(100),
				Threshold:  threshold,
				TotalPower: *quantity.NewFromUint64(10),
				Status:     api.StatusOpen,
			},
		})
	}

	store, err := state.New(dataDir)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.ImportGenesis(context.Background(), g))
}

func TestNodeServe(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "dao-node")
	require.NoError(err)
	defer os.RemoveAll(dir)
	importTestGenesis(t, dir)

	sock := filepath.Join(dir, "query.sock")
	srv, err := grpc.NewServer(&grpc.ServerConfig{
		Name: "test",
		Path: sock,
	})
	require.NoError(err)

	cfg := config.DefaultConfig()
	cfg.Query.DefaultLimit = 2
	node, err := newNode(dir, &cfg, srv)
	require.NoError(err, "newNode")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, "unix:"+sock, 5*time.Second)
	require.NoError(err, "DialContext")
	defer conn.Close()
	client := api.NewQueryClient(conn)

	rsp, err := client.SmartQuery(ctx, []byte(`{"proposal_count":{}}`))
	require.NoError(err)
	require.Equal("3", string(rsp))

	rsp, err = client.SmartQuery(ctx, []byte(`{"list_proposals":{}}`))
	require.NoError(err)
	var list api.ProposalListResponse
	require.NoError(json.Unmarshal(rsp, &list))
	require.Len(list.Proposals, 2, "configured default limit")

	_, err = client.SmartQuery(ctx, []byte(`{}`))
	require.True(errors.Is(err, api.ErrValidation), "validation errors survive the wire")

	_, err = client.SmartQuery(ctx, []byte(`{"proposal":{"proposal_id":9}}`))
	require.True(errors.Is(err, api.ErrNoSuchProposal))

	block, err := client.GetBlock(ctx)
	require.NoError(err)
	require.EqualValues(10, block.Height)

	done := make(chan struct{})
	go func() {
		node.Wait()
		close(done)
	}()
	node.Stop()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		require.Fail("node did not stop")
	}
	node.Cleanup()
}

func TestNodeEmptyState(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "dao-node")
	require.NoError(err)
	defer os.RemoveAll(dir)

	srv, err := grpc.NewServer(&grpc.ServerConfig{
		Name: "test-empty",
		Path: filepath.Join(dir, "query.sock"),
	})
	require.NoError(err)

	cfg := config.DefaultConfig()
	node, err := newNode(dir, &cfg, srv)
	require.NoError(err, "an empty state should still serve")

	_, err = node.Querier.SmartQuery(context.Background(), []byte(`{"config":{}}`))
	require.True(errors.Is(err, api.ErrNotFound), "nothing imported yet")

	node.Stop()
	node.Wait()
	node.Cleanup()
}
