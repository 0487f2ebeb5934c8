package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Wallet addresses are lowercased before keying so checksummed and plain
// hex spellings of the same wallet share a record.
const (
	sessionKeyPrefix = "paymaster:session:"
	historyKeyFmt    = "paymaster:history:%s"
	historyMaxLen    = 100
)

// Record mirrors an open paymaster session for crash recovery and support
// tooling. The live state machine stays in memory; this is the durable
// shadow keyed by wallet.
type Record struct {
	SessionID string
	Wallet    string
	Name      string
	Target    string
	Strategy  string
	OpenedAt  int64
}

// Outcome is one settled sponsored transaction in a wallet's history.
type Outcome struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Strategy  string `json:"strategy"`
	TxHash    string `json:"tx_hash"`
	Status    string `json:"status"`
	SettledAt int64  `json:"settled_at"`
}

func sessionKey(wallet string) string {
	return sessionKeyPrefix + strings.ToLower(wallet)
}

func historyKey(wallet string) string {
	return fmt.Sprintf(historyKeyFmt, strings.ToLower(wallet))
}

func SaveSession(ctx context.Context, rdb *redis.Client, r Record) error {
	return rdb.HSet(ctx, sessionKey(r.Wallet),
		"session_id", r.SessionID,
		"wallet", r.Wallet,
		"name", r.Name,
		"target", r.Target,
		"strategy", r.Strategy,
		"opened_at", r.OpenedAt,
	).Err()
}

func GetSession(ctx context.Context, rdb *redis.Client, wallet string) (*Record, error) {
	vals, err := rdb.HGetAll(ctx, sessionKey(wallet)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	openedAt, _ := strconv.ParseInt(vals["opened_at"], 10, 64)
	return &Record{
		SessionID: vals["session_id"],
		Wallet:    vals["wallet"],
		Name:      vals["name"],
		Target:    vals["target"],
		Strategy:  vals["strategy"],
		OpenedAt:  openedAt,
	}, nil
}

// UpdateStrategy records a strategy change on the wallet's open session.
func UpdateStrategy(ctx context.Context, rdb *redis.Client, wallet, strategy string) error {
	return rdb.HSet(ctx, sessionKey(wallet), "strategy", strategy).Err()
}

func DeleteSession(ctx context.Context, rdb *redis.Client, wallet string) error {
	return rdb.Del(ctx, sessionKey(wallet)).Err()
}

// AppendOutcome pushes a settled outcome onto the wallet's history and trims
// it to the newest historyMaxLen entries.
func AppendOutcome(ctx context.Context, rdb *redis.Client, wallet string, o Outcome) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	key := historyKey(wallet)
	if err := rdb.LPush(ctx, key, string(raw)).Err(); err != nil {
		return fmt.Errorf("push outcome: %w", err)
	}
	return rdb.LTrim(ctx, key, 0, historyMaxLen-1).Err()
}

// History returns up to n settled outcomes for a wallet, newest first.
func History(ctx context.Context, rdb *redis.Client, wallet string, n int64) ([]Outcome, error) {
	if n <= 0 || n > historyMaxLen {
		n = historyMaxLen
	}
	key := historyKey(wallet)
	items, err := rdb.LRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]Outcome, 0, len(items))
	for _, raw := range items {
		var o Outcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
