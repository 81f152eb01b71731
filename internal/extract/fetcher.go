package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"publishScope/internal/contract"
	"publishScope/internal/model"
)

// LogSource is the subset of the chain client the fetcher needs.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Fetcher reads ServiceAgreementV1Created events for one contract.
type Fetcher struct {
	source    LogSource
	address   common.Address
	topic     common.Hash
	batchSize uint64
	logger    *zap.Logger
}

// NewFetcher builds a Fetcher for the contract address.
func NewFetcher(source LogSource, contractAddress string, batchSize uint64, logger *zap.Logger) (*Fetcher, error) {
	if source == nil {
		return nil, fmt.Errorf("log source is nil")
	}
	address, err := ParseAddress(contractAddress)
	if err != nil {
		return nil, err
	}
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	topic, err := contract.EventTopic()
	if err != nil {
		return nil, fmt.Errorf("event topic: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		source:    source,
		address:   address,
		topic:     topic,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Head returns the current chain head.
func (f *Fetcher) Head(ctx context.Context) (uint64, error) {
	return f.source.LatestBlockNumber(ctx)
}

// FetchEvents returns decoded events in [from, to] ordered by block and log index.
// An empty result is not an error.
func (f *Fetcher) FetchEvents(ctx context.Context, from, to uint64) ([]model.RawEvent, error) {
	ranges, err := BlockRange{From: from, To: to}.Batches(f.batchSize)
	if err != nil {
		return nil, err
	}

	events := make([]model.RawEvent, 0)
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f.logger.Debug("fetch logs",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Uint64("blocks", blockRange.Len()),
		)

		logs, err := f.source.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{f.address}, []common.Hash{f.topic})
		if err != nil {
			return nil, err
		}

		for _, log := range logs {
			if log.Removed {
				continue
			}
			event, err := contract.DecodeServiceAgreementCreated(log)
			if err != nil {
				f.logger.Warn("decode log failed",
					zap.Error(err),
					zap.Uint64("block_number", log.BlockNumber),
					zap.String("tx_hash", log.TxHash.Hex()),
					zap.Uint("log_index", log.Index),
				)
				continue
			}
			events = append(events, event)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	return events, nil
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}
