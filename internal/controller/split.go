package controller

import (
	"fmt"

	"github.com/cemaco/titlegen/internal/config"
	"github.com/cemaco/titlegen/internal/engine"
)

// Split partitions admitted records into chunks of at most maxBatchSize
// items, preserving input order. The final chunk may be smaller. The
// same input and size always produce the same partition.
func Split(items []engine.Item, maxBatchSize int) ([][]engine.Item, error) {
	if maxBatchSize < 1 || maxBatchSize > config.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d out of range [1,%d]",
			config.ErrInvalidConfig, maxBatchSize, config.MaxBatchSize)
	}

	if len(items) == 0 {
		return nil, nil
	}

	totalChunks := (len(items) + maxBatchSize - 1) / maxBatchSize
	chunks := make([][]engine.Item, 0, totalChunks)
	for start := 0; start < len(items); start += maxBatchSize {
		end := min(start+maxBatchSize, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks, nil
}
