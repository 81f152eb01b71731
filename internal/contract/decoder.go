package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"publishScope/internal/model"
)

// DecodeServiceAgreementCreated converts a ServiceAgreementV1Created log into a RawEvent.
func DecodeServiceAgreementCreated(log types.Log) (model.RawEvent, error) {
	parsed, err := ServiceAgreementABI()
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("parse abi: %w", err)
	}
	event := parsed.Events[ServiceAgreementCreatedEvent]

	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return model.RawEvent{}, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return model.RawEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	var topics struct {
		AssetContract common.Address
		TokenId       *big.Int
	}
	if err := abi.ParseTopics(&topics, indexed, log.Topics[1:]); err != nil {
		return model.RawEvent{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 6 {
		return model.RawEvent{}, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}

	startTime, err := asBigInt(values[2])
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("start time: %w", err)
	}
	if !startTime.IsUint64() {
		return model.RawEvent{}, fmt.Errorf("start time overflow: %s", startTime)
	}
	epochs, err := asBigInt(values[3])
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("epochs number: %w", err)
	}
	epochLength, err := asBigInt(values[4])
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("epoch length: %w", err)
	}
	tokenAmount, err := asBigInt(values[5])
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("token amount: %w", err)
	}

	tokenID := topics.TokenId
	if tokenID == nil {
		tokenID = new(big.Int)
	}

	return model.RawEvent{
		AssetContract:   topics.AssetContract.Hex(),
		TokenID:         tokenID,
		StartTime:       startTime.Uint64(),
		EpochsNumber:    epochs.Uint64(),
		EpochLength:     epochLength,
		TokenAmount:     tokenAmount,
		TxHash:          log.TxHash.Hex(),
		BlockHash:       log.BlockHash.Hex(),
		BlockNumber:     log.BlockNumber,
		LogIndex:        uint64(log.Index),
		ContractAddress: log.Address.Hex(),
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
