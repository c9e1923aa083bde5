package voters

import (
	"log/slog"
	"sort"
)

// Store is an arena that exclusively owns every voter record. Slots are
// recycled, never freed, so in-place mutation never relocates other voters.
// Other subsystems hold VoterIDs, never pointers; a stale ID resolves to
// nil and the caller skips it.
//
// Store is not safe for concurrent mutation. The simulation thread owns all
// writes; the parallel update phase splits the selected working set so each
// worker touches only its own voters.
type Store struct {
	slots []Voter
	free  []int32
	index map[VoterID]int32

	// Tier membership, each slice kept sorted by ID for determinism.
	tiers [NumTiers][]VoterID

	nextID VoterID
}

// NewStore creates a store with room for capacity voters before growth.
func NewStore(capacity int) *Store {
	return &Store{
		slots:  make([]Voter, 0, capacity),
		index:  make(map[VoterID]int32, capacity),
		nextID: 1,
	}
}

// Len returns the live population count.
func (s *Store) Len() int {
	return len(s.index)
}

// NextID returns the next ID that will be issued.
func (s *Store) NextID() VoterID {
	return s.nextID
}

// SetNextID sets the next ID to issue (used when restoring a snapshot).
func (s *Store) SetNextID(id VoterID) {
	if id > s.nextID {
		s.nextID = id
	}
}

// Insert adds a voter, assigning its ID and slot. New voters always enter
// at TierLow so they are guaranteed at least one initial update.
func (s *Store) Insert(v Voter) VoterID {
	v.ID = s.nextID
	s.nextID++
	if v.Tier == TierDormant {
		v.Tier = TierLow
	}

	var slot int32
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[slot] = v
	} else {
		slot = int32(len(s.slots))
		s.slots = append(s.slots, v)
	}

	s.index[v.ID] = slot
	s.tierInsert(v.Tier, v.ID)
	return v.ID
}

// Restore inserts a voter preserving its existing ID and tier. Used by
// snapshot loading; IDs must be unique.
func (s *Store) Restore(v Voter) {
	if _, exists := s.index[v.ID]; exists {
		slog.Error("duplicate voter id on restore, skipping", "id", v.ID)
		return
	}
	slot := int32(len(s.slots))
	s.slots = append(s.slots, v)
	s.index[v.ID] = slot
	s.tierInsert(v.Tier, v.ID)
	if v.ID >= s.nextID {
		s.nextID = v.ID + 1
	}
}

// Get returns the voter for id, or nil if the id is stale or unknown.
// An unknown id is a programming fault upstream; callers log and skip.
func (s *Store) Get(id VoterID) *Voter {
	slot, ok := s.index[id]
	if !ok {
		return nil
	}
	return &s.slots[slot]
}

// Recycle removes a voter and returns its slot to the free list. Pending
// gateway futures holding this ID will fail to resolve it and cancel.
func (s *Store) Recycle(id VoterID) {
	slot, ok := s.index[id]
	if !ok {
		slog.Error("recycle of unknown voter id, skipping", "id", id)
		return
	}
	tier := s.slots[slot].Tier
	s.tierRemove(tier, id)
	delete(s.index, id)
	s.free = append(s.free, slot)
	s.slots[slot] = Voter{}
}

// SetTier moves a voter between tier partitions.
func (s *Store) SetTier(id VoterID, tier Tier) {
	slot, ok := s.index[id]
	if !ok {
		slog.Error("tier change for unknown voter id, skipping", "id", id)
		return
	}
	v := &s.slots[slot]
	if v.Tier == tier {
		return
	}
	s.tierRemove(v.Tier, id)
	v.Tier = tier
	s.tierInsert(tier, id)
}

// TierMembers returns the IDs in a tier, sorted ascending. The returned
// slice is owned by the store; callers must not mutate it.
func (s *Store) TierMembers(tier Tier) []VoterID {
	return s.tiers[tier]
}

// TierCounts returns the population count per tier.
func (s *Store) TierCounts() [NumTiers]int {
	var counts [NumTiers]int
	for t := 0; t < NumTiers; t++ {
		counts[t] = len(s.tiers[t])
	}
	return counts
}

// ForEach calls fn for every live voter in slot order.
func (s *Store) ForEach(fn func(*Voter)) {
	for i := range s.slots {
		if s.slots[i].ID == 0 {
			continue
		}
		fn(&s.slots[i])
	}
}

// IDs returns all live voter IDs sorted ascending.
func (s *Store) IDs() []VoterID {
	ids := make([]VoterID, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) tierInsert(tier Tier, id VoterID) {
	members := s.tiers[tier]
	i := sort.Search(len(members), func(i int) bool { return members[i] >= id })
	members = append(members, 0)
	copy(members[i+1:], members[i:])
	members[i] = id
	s.tiers[tier] = members
}

func (s *Store) tierRemove(tier Tier, id VoterID) {
	members := s.tiers[tier]
	i := sort.Search(len(members), func(i int) bool { return members[i] >= id })
	if i < len(members) && members[i] == id {
		s.tiers[tier] = append(members[:i], members[i+1:]...)
	}
}
