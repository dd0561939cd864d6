// Package index builds the ordered, deduplicated packet projection that the
// query evaluator runs against: the handshake between the metadata and
// location packages.
package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/mrc-ide/outpack-go/pkg/config"
	"github.com/mrc-ide/outpack-go/pkg/location"
	"github.com/mrc-ide/outpack-go/pkg/metadata"
)

// Index is the ordered, deduplicated-by-first-location projection of every
// packet known to a repository root.
type Index struct {
	Packets []metadata.Packet
}

// Len returns the number of packets in the index.
func (idx Index) Len() int { return len(idx.Packets) }

// Build reads metadata for every known packet id and orders them by
// location priority (ascending, as configured) then packet id (ascending);
// a packet known to more than one location appears once, at the position
// of its highest-priority (lowest-numbered-priority) location.
func Build(ctx context.Context, root string) (Index, error) {
	cfg, err := config.Read(ctx, root)
	if err != nil {
		return Index{}, err
	}

	locs := append([]config.Location(nil), cfg.Locations...)
	sort.Slice(locs, func(i, j int) bool { return locs[i].Priority < locs[j].Priority })

	seen := make(map[string]bool)

	orderedIDs := make([]string, 0)

	for _, l := range locs {
		entries, err := location.ReadOne(root, l.ID)
		if err != nil {
			return Index{}, err
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.Packet
		}

		sort.Strings(ids)

		for _, id := range ids {
			if seen[id] {
				continue
			}

			seen[id] = true

			orderedIDs = append(orderedIDs, id)
		}
	}

	packets := make([]metadata.Packet, 0, len(orderedIDs))

	for _, id := range orderedIDs {
		p, err := metadata.GetJSON(root, id)
		if err != nil {
			return Index{}, fmt.Errorf("error building index: %w", err)
		}

		packets = append(packets, p)
	}

	return Index{Packets: packets}, nil
}
