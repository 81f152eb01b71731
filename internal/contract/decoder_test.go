package contract

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeServiceAgreementCreated(t *testing.T) {
	parsed, err := ServiceAgreementABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := parsed.Events[ServiceAgreementCreatedEvent]

	reward, _ := new(big.Int).SetString("5000000000000000000", 10)
	data, err := event.Inputs.NonIndexed().Pack(
		[]byte("keyword"),
		uint8(1),
		big.NewInt(1700000000),
		uint16(5),
		big.NewInt(2592000),
		reward,
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	assetContract := common.HexToAddress("0x5cAc41237127F94c2D21dAe0b14bFeFa99880630")
	emitter := common.HexToAddress("0xB20F6F3B9176D4B284bA26b80833ff5bFe6db28F")
	log := types.Log{
		Address: emitter,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(assetContract.Bytes()),
			common.BigToHash(big.NewInt(1024)),
		},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xaa"),
		BlockHash:   common.HexToHash("0xbb"),
		Index:       3,
	}

	got, err := DecodeServiceAgreementCreated(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.AssetContract != assetContract.Hex() {
		t.Fatalf("asset contract mismatch: %s", got.AssetContract)
	}
	if got.TokenID.Int64() != 1024 {
		t.Fatalf("token id mismatch: %s", got.TokenID)
	}
	if got.StartTime != 1700000000 || got.EpochsNumber != 5 {
		t.Fatalf("time fields mismatch: %+v", got)
	}
	if got.EpochLength.Int64() != 2592000 || got.TokenAmount.Cmp(reward) != 0 {
		t.Fatalf("amount fields mismatch: %+v", got)
	}
	if got.BlockNumber != 100 || got.LogIndex != 3 {
		t.Fatalf("position mismatch: %+v", got)
	}
	if got.TxHash != log.TxHash.Hex() || got.ContractAddress != emitter.Hex() {
		t.Fatalf("hash or emitter mismatch: %+v", got)
	}
}

func TestDecodeRejectsForeignTopic(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{common.HexToHash("0x01"), {}, {}},
	}
	if _, err := DecodeServiceAgreementCreated(log); err == nil {
		t.Fatalf("expected error for foreign topic0")
	}
}

func TestDecodeRejectsShortTopics(t *testing.T) {
	topic, err := EventTopic()
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if _, err := DecodeServiceAgreementCreated(types.Log{Topics: []common.Hash{topic}}); err == nil {
		t.Fatalf("expected error for missing indexed topics")
	}
}
