package cache

import (
	"fmt"
	"strings"
)

// Partition is one of the four named cache stores.
type Partition string

const (
	PartitionStatic  Partition = "static"
	PartitionDynamic Partition = "dynamic"
	PartitionMedia   Partition = "media"
	PartitionAPI     Partition = "api"
)

// Partitions lists every partition.
var Partitions = []Partition{PartitionStatic, PartitionDynamic, PartitionMedia, PartitionAPI}

// ParsePartition parses a partition name.
func ParsePartition(s string) (Partition, error) {
	for _, p := range Partitions {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown cache partition %q", s)
}

// Names builds versioned storage names for partitions, e.g.
// "feedsync-media-mobile-v1". Bumping Version orphans the previous
// generation, which Activate then removes.
type Names struct {
	Namespace string
	Profile   string
	Version   string
}

// Name returns the storage name of p.
func (n Names) Name(p Partition) string {
	parts := []string{n.Namespace, string(p)}
	if n.Profile != "" {
		parts = append(parts, n.Profile)
	}
	if n.Version != "" {
		parts = append(parts, n.Version)
	}
	return strings.Join(parts, "-")
}

// All returns the storage names of every partition.
func (n Names) All() []string {
	names := make([]string, len(Partitions))
	for i, p := range Partitions {
		names[i] = n.Name(p)
	}
	return names
}

// Limits maps a partition to its maximum entry count. Zero or a missing
// entry means unbounded.
type Limits map[Partition]int

// MobileLimits are the capacities of the mobile profile.
func MobileLimits() Limits {
	return Limits{PartitionDynamic: 30, PartitionMedia: 50, PartitionAPI: 20}
}
