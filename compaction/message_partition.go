package compaction

import (
	"github.com/youssefsiam38/contextpg/storage"
)

// MessagePartition splits a session's active messages for compaction.
// The three sets are disjoint and each is in seq order.
type MessagePartition struct {
	// Pinned are original system directives excluded from the retention
	// scan. They are retained and their tokens are charged to the budget
	// first. Empty when Config.CompactDirectives is set.
	Pinned []*storage.Message

	// Keep is the newest suffix of the scanned messages that fits the
	// budget. It is never empty when there was anything to scan.
	Keep []*storage.Message

	// Compact holds everything older than Keep. These are summarized and
	// retired.
	Compact []*storage.Message

	// Budget is the target token budget the partition was computed for.
	Budget int

	// Aborted is set when Compact has fewer than Config.MinMessages
	// entries, which is not worth a summary.
	Aborted bool

	Stats PartitionStats
}

// PartitionStats contains token statistics for each set.
type PartitionStats struct {
	PinnedTokens  TokenCount
	KeepTokens    TokenCount
	CompactTokens TokenCount
	TotalTokens   TokenCount
}

// Partitioner is the retention selector.
type Partitioner struct {
	config *Config
}

// NewPartitioner creates a new Partitioner with the given configuration.
func NewPartitioner(config *Config) *Partitioner {
	return &Partitioner{config: config}
}

// Partition splits messages (active, oldest first) under budget.
//
// Messages are scanned newest first. Each is kept while the running total,
// pinned directives included, stays within budget; the first message that
// would overflow and everything older goes to Compact. If even the newest
// scanned message overflows on its own it is still kept alone.
func (p *Partitioner) Partition(messages []*storage.Message, budget int) *MessagePartition {
	part := &MessagePartition{Budget: budget}
	part.Stats.PinnedTokens = ExactCount(0)

	scan := make([]*storage.Message, 0, len(messages))
	for _, m := range messages {
		if !p.config.CompactDirectives && m.IsDirective() {
			part.Pinned = append(part.Pinned, m)
			part.Stats.PinnedTokens = part.Stats.PinnedTokens.Add(MessageTokens(m))
			continue
		}
		scan = append(scan, m)
	}

	used := part.Stats.PinnedTokens.N
	split := len(scan)
	for i := len(scan) - 1; i >= 0; i-- {
		tokens := MessageTokens(scan[i]).N
		if used+tokens > budget {
			break
		}
		used += tokens
		split = i
	}

	// Never produce an empty keep set to satisfy the budget.
	if split == len(scan) && len(scan) > 0 {
		split = len(scan) - 1
	}

	part.Keep = scan[split:]
	part.Compact = scan[:split]
	part.Stats.KeepTokens = SumTokens(part.Keep)
	part.Stats.CompactTokens = SumTokens(part.Compact)
	part.Stats.TotalTokens = part.Stats.PinnedTokens.Add(part.Stats.KeepTokens).Add(part.Stats.CompactTokens)
	part.Aborted = len(part.Compact) < p.config.MinMessages

	return part
}

// CanCompact returns true if the partition has a compact set worth summarizing.
func (p *MessagePartition) CanCompact() bool {
	return !p.Aborted && len(p.Compact) > 0
}

// CompactIDs returns the IDs of the compact set in seq order.
func (p *MessagePartition) CompactIDs() []int64 {
	ids := make([]int64, len(p.Compact))
	for i, msg := range p.Compact {
		ids[i] = msg.ID
	}
	return ids
}

// RetainedTokens returns the tokens that survive compaction verbatim.
func (p *MessagePartition) RetainedTokens() TokenCount {
	return p.Stats.PinnedTokens.Add(p.Stats.KeepTokens)
}
