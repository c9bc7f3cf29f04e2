package constants

import "time"

const (
	KeySizeBytes = 20 // 160-bit identifiers
	K            = 8
	Alpha        = 4 // Concurrency parameter

	// One bucket per possible bucket index plus the degenerate zero-distance slot.
	BucketCount = KeySizeBytes*8 + 1

	RequestTimeout = 1 * time.Second
	EvictionTTL    = 3 * time.Second
	WakeInterval   = 300 * time.Millisecond
	LookupTimeout  = 10 * time.Second
	ValueTTL       = 24 * time.Hour

	// Every protocol message has to fit in a single IPv4 UDP datagram.
	MaxDatagramSize = 65507
	HeaderSize      = 1 + KeySizeBytes + 4
	MaxValueSize    = MaxDatagramSize - HeaderSize - KeySizeBytes
)
