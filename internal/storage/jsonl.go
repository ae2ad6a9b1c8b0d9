package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"swapwatch/internal/model"
)

// JsonlSink writes swaps as JSON lines, one record per Write.
type JsonlSink struct {
	path string
	mu   sync.Mutex
}

func NewJsonlSink(path string) *JsonlSink {
	return &JsonlSink{path: path}
}

type jsonlRecord struct {
	Timestamp   int64  `json:"ts"`
	TxHash      string `json:"tx"`
	BlockNumber uint64 `json:"block"`
	LogIndex    uint   `json:"log_index"`
	Side        string `json:"side"`
	AmountFocus string `json:"amount_focus"`
	AmountOther string `json:"amount_other"`
	USD         string `json:"usd"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Mode        string `json:"mode"`
}

// Append writes one swap.
func (s *JsonlSink) Append(_ context.Context, swap model.NormalizedSwap) error {
	line, err := json.Marshal(jsonlRecord{
		Timestamp:   swap.Timestamp,
		TxHash:      swap.TxHash.Hex(),
		BlockNumber: swap.BlockNumber,
		LogIndex:    swap.LogIndex,
		Side:        swap.Side,
		AmountFocus: swap.AmountFocus.String(),
		AmountOther: swap.AmountOther.String(),
		USD:         swap.USDEstimate.StringFixed(2),
		Sender:      swap.Sender.Hex(),
		Recipient:   swap.Recipient.Hex(),
		Mode:        swap.DecodeMode,
	})
	if err != nil {
		return fmt.Errorf("marshal swap: %w", err)
	}
	line = append(line, '\n')

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("write swap: %w", err)
	}
	return nil
}
