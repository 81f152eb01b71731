package contract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ServiceAgreementCreatedEvent is the event name emitted when an asset is published.
const ServiceAgreementCreatedEvent = "ServiceAgreementV1Created"

const serviceAgreementABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "assetContract", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "tokenId", "type": "uint256"},
      {"indexed": false, "internalType": "bytes", "name": "keyword", "type": "bytes"},
      {"indexed": false, "internalType": "uint8", "name": "hashFunctionId", "type": "uint8"},
      {"indexed": false, "internalType": "uint256", "name": "startTime", "type": "uint256"},
      {"indexed": false, "internalType": "uint16", "name": "epochsNumber", "type": "uint16"},
      {"indexed": false, "internalType": "uint128", "name": "epochLength", "type": "uint128"},
      {"indexed": false, "internalType": "uint96", "name": "tokenAmount", "type": "uint96"}
    ],
    "name": "ServiceAgreementV1Created",
    "type": "event"
  }
]`

var (
	serviceAgreementABI     abi.ABI
	serviceAgreementABIOnce sync.Once
	serviceAgreementABIErr  error
)

// ServiceAgreementABI returns the parsed ServiceAgreementV1 event ABI.
func ServiceAgreementABI() (abi.ABI, error) {
	serviceAgreementABIOnce.Do(func() {
		serviceAgreementABI, serviceAgreementABIErr = abi.JSON(strings.NewReader(serviceAgreementABIJSON))
	})
	return serviceAgreementABI, serviceAgreementABIErr
}

// EventTopic returns topic0 of ServiceAgreementV1Created.
func EventTopic() (common.Hash, error) {
	parsed, err := ServiceAgreementABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events[ServiceAgreementCreatedEvent].ID, nil
}
