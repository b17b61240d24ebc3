package burnsync

import "time"

type Config struct {
	// PollInterval between live burn-watch ticks.
	PollInterval time.Duration

	// LookbackBlocks bounds the startup backfill window.
	LookbackBlocks uint64

	// ChunkSize caps each FilterLogs block range; dictated by the rpc
	// provider's page limit.
	ChunkSize uint64

	// OverlapBlocks backdates the first live tick to close any gap
	// between backfill's cutoff and the watch's start.
	OverlapBlocks uint64

	// Domain is this deployment's destination domain in the messaging
	// protocol's addressing scheme. Burns addressed elsewhere are ignored.
	Domain uint32
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.PollInterval == 0 {
		out.PollInterval = 5 * time.Second
	}
	if out.LookbackBlocks == 0 {
		out.LookbackBlocks = 10_000
	}
	if out.ChunkSize == 0 {
		out.ChunkSize = 2_000
	}
	if out.OverlapBlocks == 0 {
		out.OverlapBlocks = 10
	}
	return &out
}
