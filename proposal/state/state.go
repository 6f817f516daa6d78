// Package state implements a local index of a proposal module's state,
// backed by BadgerDB, that answers proposal queries.
package state

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	cmnBadger "github.com/nicolaslara/dao-contracts/common/badger"
	"github.com/nicolaslara/dao-contracts/common/cbor"
	"github.com/nicolaslara/dao-contracts/common/errors"
	"github.com/nicolaslara/dao-contracts/common/keyformat"
	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/proposal/api"
)

const (
	dbVersion = 1

	// DBDirName is the name of the database directory inside the data dir.
	DBDirName = "proposal-state.badger.db"
)

var (
	// metadataKeyFmt is the metadata key format.
	//
	// Value is CBOR-serialized dbMetadata.
	metadataKeyFmt = keyformat.New(0x01)
	// configKeyFmt is the module configuration key format.
	//
	// Value is CBOR-serialized api.Config.
	configKeyFmt = keyformat.New(0x02)
	// infoKeyFmt is the contract version key format.
	//
	// Value is CBOR-serialized api.ContractVersion.
	infoKeyFmt = keyformat.New(0x03)
	// proposalKeyFmt is the proposal index key format, by proposal id.
	//
	// Value is CBOR-serialized api.Proposal.
	proposalKeyFmt = keyformat.New(0x04, uint64(0))
	// ballotKeyFmt is the ballot index key format, by proposal id and voter.
	//
	// Value is CBOR-serialized api.VoteInfo.
	ballotKeyFmt = keyformat.New(0x05, uint64(0), "")

	errNotInitialized = errors.WithContext(api.ErrNotFound, "state has not been imported")

	_ api.Backend = (*Store)(nil)
)

type dbMetadata struct {
	// Version is the database schema version.
	Version uint64 `json:"version"`
	// Contract is the address of the indexed contract, empty until a
	// genesis has been imported.
	Contract string `json:"contract,omitempty"`
	// Block is the block the state was last updated at.
	Block api.BlockInfo `json:"block"`
	// ProposalCount is the number of proposals created.
	ProposalCount uint64 `json:"proposal_count"`
}

func (m *dbMetadata) initialized() bool {
	return m.Contract != ""
}

// Store is the proposal state index.
type Store struct {
	logger *logging.Logger

	db *badger.DB
	gc *cmnBadger.GCWorker

	closeOnce sync.Once
}

// New opens (creating if needed) the state index in dataDir. An empty
// dataDir opens an ephemeral in-memory index.
func New(dataDir string) (*Store, error) {
	var path string
	if dataDir != "" {
		path = filepath.Join(dataDir, DBDirName)
	}
	logger := logging.GetLogger("proposal/state").With("path", path)

	db, gc, err := cmnBadger.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("proposal/state: %w", err)
	}

	s := &Store{
		logger: logger,
		db:     db,
		gc:     gc,
	}
	if err = s.ensureMetadata(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the state index.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.gc.Close()
		if err := s.db.Close(); err != nil {
			s.logger.Error("failed to close database",
				"err", err,
			)
		}
	})
}

// Cleanup closes the state index, so the store can be registered as a
// cleanup-only service.
func (s *Store) Cleanup() {
	s.Close()
}

func queryGetMetadata(tx *badger.Txn) (*dbMetadata, error) {
	var meta dbMetadata
	if err := getCBOR(tx, metadataKeyFmt.Encode(), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) ensureMetadata() error {
	return s.db.Update(func(tx *badger.Txn) error {
		meta, err := queryGetMetadata(tx)
		switch err {
		case nil:
		case badger.ErrKeyNotFound:
			return tx.Set(metadataKeyFmt.Encode(), cbor.Marshal(&dbMetadata{Version: dbVersion}))
		default:
			return err
		}

		if meta.Version != dbVersion {
			return fmt.Errorf("proposal/state: unsupported database version (expected: %d got: %d)",
				dbVersion,
				meta.Version,
			)
		}
		return nil
	})
}

func (s *Store) metadata() (*dbMetadata, error) {
	var meta *dbMetadata
	err := s.db.View(func(tx *badger.Txn) error {
		var err error
		meta, err = queryGetMetadata(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !meta.initialized() {
		return nil, errNotInitialized
	}
	return meta, nil
}

// ImportGenesis seeds an empty index with a genesis snapshot.
func (s *Store) ImportGenesis(ctx context.Context, g *api.Genesis) error {
	if err := g.SanityCheck(); err != nil {
		return err
	}

	err := s.db.View(func(tx *badger.Txn) error {
		meta, err := queryGetMetadata(tx)
		if err != nil {
			return err
		}
		if meta.initialized() {
			return fmt.Errorf("proposal/state: state already imported for contract %s", meta.Contract)
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := range g.Proposals {
		pr := &g.Proposals[i]
		if err = wb.Set(proposalKeyFmt.Encode(pr.ID), cbor.Marshal(&pr.Proposal)); err != nil {
			return fmt.Errorf("proposal/state: failed to write proposal %d: %w", pr.ID, err)
		}
	}
	var nBallots int
	for id, ballots := range g.Ballots {
		for i := range ballots {
			b := &ballots[i]
			if err = wb.Set(ballotKeyFmt.Encode(id, b.Voter), cbor.Marshal(b)); err != nil {
				return fmt.Errorf("proposal/state: failed to write ballot on %d: %w", id, err)
			}
			nBallots++
		}
	}
	if err = wb.Set(configKeyFmt.Encode(), cbor.Marshal(&g.Config)); err != nil {
		return fmt.Errorf("proposal/state: failed to write config: %w", err)
	}
	if err = wb.Set(infoKeyFmt.Encode(), cbor.Marshal(&g.Info)); err != nil {
		return fmt.Errorf("proposal/state: failed to write info: %w", err)
	}
	if err = wb.Flush(); err != nil {
		return fmt.Errorf("proposal/state: failed to flush genesis: %w", err)
	}

	// Metadata goes last so that a partially written import is never
	// treated as initialized.
	meta := dbMetadata{
		Version:       dbVersion,
		Contract:      g.Contract,
		Block:         g.Block,
		ProposalCount: g.EffectiveProposalCount(),
	}
	if err = s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(metadataKeyFmt.Encode(), cbor.Marshal(&meta))
	}); err != nil {
		return fmt.Errorf("proposal/state: failed to write metadata: %w", err)
	}

	s.logger.Info("imported genesis",
		"contract", g.Contract,
		"height", g.Block.Height,
		"proposals", len(g.Proposals),
		"ballots", nBallots,
	)
	return nil
}

// SetBlock advances the block against which proposal status is computed.
func (s *Store) SetBlock(ctx context.Context, block *api.BlockInfo) error {
	return s.db.Update(func(tx *badger.Txn) error {
		meta, err := queryGetMetadata(tx)
		if err != nil {
			return err
		}
		if !meta.initialized() {
			return errNotInitialized
		}
		if block.Height < meta.Block.Height {
			return fmt.Errorf("proposal/state: block at lower height (current: %d wanted: %d)",
				meta.Block.Height,
				block.Height,
			)
		}
		if block.ChainID != meta.Block.ChainID {
			return fmt.Errorf("proposal/state: chain mismatch (expected: %s got: %s)",
				meta.Block.ChainID,
				block.ChainID,
			)
		}

		meta.Block = *block
		return tx.Set(metadataKeyFmt.Encode(), cbor.Marshal(meta))
	})
}

// Contract returns the address of the indexed contract.
func (s *Store) Contract(ctx context.Context) (string, error) {
	meta, err := s.metadata()
	if err != nil {
		return "", err
	}
	return meta.Contract, nil
}

// Config implements api.Backend.
func (s *Store) Config(ctx context.Context) (*api.Config, error) {
	if _, err := s.metadata(); err != nil {
		return nil, err
	}

	var cfg api.Config
	if err := s.db.View(func(tx *badger.Txn) error {
		return getCBOR(tx, configKeyFmt.Encode(), &cfg)
	}); err != nil {
		return nil, fmt.Errorf("proposal/state: failed to read config: %w", err)
	}
	return &cfg, nil
}

// Info implements api.Backend.
func (s *Store) Info(ctx context.Context) (*api.ContractVersion, error) {
	if _, err := s.metadata(); err != nil {
		return nil, err
	}

	var info api.ContractVersion
	if err := s.db.View(func(tx *badger.Txn) error {
		return getCBOR(tx, infoKeyFmt.Encode(), &info)
	}); err != nil {
		return nil, fmt.Errorf("proposal/state: failed to read info: %w", err)
	}
	return &info, nil
}

// Block implements api.Backend.
func (s *Store) Block(ctx context.Context) (*api.BlockInfo, error) {
	meta, err := s.metadata()
	if err != nil {
		return nil, err
	}
	return &meta.Block, nil
}

// ProposalCount implements api.Backend.
func (s *Store) ProposalCount(ctx context.Context) (uint64, error) {
	meta, err := s.metadata()
	if err != nil {
		return 0, err
	}
	return meta.ProposalCount, nil
}

// Proposal implements api.Backend.
func (s *Store) Proposal(ctx context.Context, id uint64) (*api.Proposal, error) {
	var p api.Proposal
	err := s.db.View(func(tx *badger.Txn) error {
		return getCBOR(tx, proposalKeyFmt.Encode(id), &p)
	})
	switch err {
	case nil:
		return &p, nil
	case badger.ErrKeyNotFound:
		return nil, errors.WithContext(api.ErrNoSuchProposal, fmt.Sprintf("id %d", id))
	default:
		return nil, fmt.Errorf("proposal/state: failed to read proposal %d: %w", id, err)
	}
}

// ListProposals implements api.Backend.
func (s *Store) ListProposals(ctx context.Context, startAfter *uint64, limit uint64) ([]api.ProposalResponse, error) {
	start := proposalKeyFmt.Encode()
	if startAfter != nil {
		if *startAfter == math.MaxUint64 {
			return []api.ProposalResponse{}, nil
		}
		start = proposalKeyFmt.Encode(*startAfter + 1)
	}
	return s.iterateProposals(start, false, limit)
}

// ReverseProposals implements api.Backend.
func (s *Store) ReverseProposals(ctx context.Context, startBefore *uint64, limit uint64) ([]api.ProposalResponse, error) {
	start := proposalKeyFmt.Encode(uint64(math.MaxUint64))
	if startBefore != nil {
		if *startBefore == 0 {
			return []api.ProposalResponse{}, nil
		}
		start = proposalKeyFmt.Encode(*startBefore - 1)
	}
	return s.iterateProposals(start, true, limit)
}

func (s *Store) iterateProposals(start []byte, reverse bool, limit uint64) ([]api.ProposalResponse, error) {
	proposals := []api.ProposalResponse{}
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = proposalKeyFmt.Encode()
		opts.Reverse = reverse
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.Valid() && uint64(len(proposals)) < limit; it.Next() {
			var id uint64
			if !proposalKeyFmt.Decode(it.Item().Key(), &id) {
				break
			}

			var p api.Proposal
			if err := unmarshalItem(it.Item(), &p); err != nil {
				return fmt.Errorf("proposal %d: %w", id, err)
			}
			proposals = append(proposals, api.ProposalResponse{ID: id, Proposal: p})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("proposal/state: failed to list proposals: %w", err)
	}
	return proposals, nil
}

// Ballot implements api.Backend.
func (s *Store) Ballot(ctx context.Context, id uint64, voter string) (*api.VoteInfo, error) {
	var vi api.VoteInfo
	err := s.db.View(func(tx *badger.Txn) error {
		return getCBOR(tx, ballotKeyFmt.Encode(id, voter), &vi)
	})
	switch err {
	case nil:
		return &vi, nil
	case badger.ErrKeyNotFound:
		return nil, api.ErrNotFound
	default:
		return nil, fmt.Errorf("proposal/state: failed to read ballot: %w", err)
	}
}

// ListVotes implements api.Backend.
func (s *Store) ListVotes(ctx context.Context, id uint64, startAfter *string, limit uint64) ([]api.VoteInfo, error) {
	ballots := []api.VoteInfo{}
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = ballotKeyFmt.Encode(id)
		it := tx.NewIterator(opts)
		defer it.Close()

		start := opts.Prefix
		if startAfter != nil {
			start = ballotKeyFmt.Encode(id, *startAfter)
		}
		for it.Seek(start); it.Valid() && uint64(len(ballots)) < limit; it.Next() {
			var voter string
			if !ballotKeyFmt.Decode(it.Item().Key(), new(uint64), &voter) {
				break
			}
			if startAfter != nil && voter == *startAfter {
				continue
			}

			var vi api.VoteInfo
			if err := unmarshalItem(it.Item(), &vi); err != nil {
				return fmt.Errorf("ballot %s: %w", voter, err)
			}
			ballots = append(ballots, vi)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("proposal/state: failed to list votes on %d: %w", id, err)
	}
	return ballots, nil
}

func getCBOR(tx *badger.Txn, key []byte, dst interface{}) error {
	item, err := tx.Get(key)
	if err != nil {
		return err
	}
	return unmarshalItem(item, dst)
}

func unmarshalItem(item *badger.Item, dst interface{}) error {
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return cbor.Unmarshal(val, dst)
}
