// Package transform joins decoded events with explorer enrichment into publish records.
package transform

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"publishScope/internal/model"
)

const (
	tokenDecimals     = 18
	secondsPerDay     = 86400
	divisionPrecision = 18
)

var daySeconds = decimal.NewFromInt(secondsPerDay)

// Transform left-joins events to enrichment by transaction hash and keeps only
// rows whose enrichment carries the success marker. The first event wins when
// a batch repeats a transaction hash.
func Transform(events []model.RawEvent, enrichment map[string]model.Enrichment) []model.PublishRecord {
	out := make([]model.PublishRecord, 0, len(events))
	seen := make(map[string]struct{}, len(events))

	for _, ev := range events {
		hash := model.NormalizeHash(ev.TxHash)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		enr, ok := enrichment[hash]
		if !ok || !enr.Successful() {
			continue
		}

		out = append(out, model.PublishRecord{
			Message:           enr.Message,
			AssetID:           bigString(ev.TokenID),
			BlockNumber:       ev.BlockNumber,
			TimeAssetCreated:  unixUTC(int64(ev.StartTime)),
			TimeOfTransaction: unixUTC(enr.Timestamp),
			TracPrice:         TokenAmount(ev.TokenAmount),
			EpochsNumber:      ev.EpochsNumber,
			EpochLengthDays:   EpochDays(ev.EpochLength),
			PublisherAddress:  enr.From,
			SentAddress:       enr.To,
			TransactionHash:   hash,
			BlockHash:         ev.BlockHash,
		})
	}
	return out
}

// TokenAmount scales a raw 18-decimal token amount to whole tokens.
func TokenAmount(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -tokenDecimals)
}

// EpochDays converts an epoch length in seconds to days.
func EpochDays(seconds *big.Int) decimal.Decimal {
	if seconds == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(seconds, 0).DivRound(daySeconds, divisionPrecision)
}

func unixUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
