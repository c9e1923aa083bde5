package voters

import (
	"testing"
)

func testVoter() Voter {
	return Voter{
		Demographics: Demographics{Age: 40, Education: EduSecondary, IncomeDecile: 5},
		Opinion:      OpinionState{Confidence: 0.5},
		Behavior:     BehaviorState{Susceptibility: 0.5, ChangeResistance: 0.3},
	}
}

func TestStoreInsertAndGet(t *testing.T) {
	s := NewStore(8)

	id := s.Insert(testVoter())
	if id == 0 {
		t.Fatal("Insert returned zero id")
	}

	v := s.Get(id)
	if v == nil {
		t.Fatal("Get returned nil for live voter")
	}
	if v.ID != id {
		t.Errorf("voter ID = %d, want %d", v.ID, id)
	}
	if v.Tier != TierLow {
		t.Errorf("new voter tier = %s, want low", v.Tier)
	}
}

func TestStoreNewVotersNeverDormant(t *testing.T) {
	s := NewStore(4)
	v := testVoter()
	v.Tier = TierDormant

	id := s.Insert(v)
	if got := s.Get(id).Tier; got != TierLow {
		t.Errorf("dormant insert landed at %s, want low", got)
	}
}

func TestStoreGetUnknownID(t *testing.T) {
	s := NewStore(4)
	if v := s.Get(999); v != nil {
		t.Errorf("Get(999) = %+v, want nil", v)
	}
}

func TestStoreRecycleInvalidatesID(t *testing.T) {
	s := NewStore(4)
	id := s.Insert(testVoter())

	s.Recycle(id)
	if s.Get(id) != nil {
		t.Error("recycled id still resolves")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d after recycle, want 0", s.Len())
	}

	// The slot is reused but the stale id must stay dead.
	id2 := s.Insert(testVoter())
	if id2 == id {
		t.Error("recycled slot reissued the same id")
	}
	if s.Get(id) != nil {
		t.Error("stale id resolves to the slot's new occupant")
	}
}

func TestStoreStablePointersAcrossInserts(t *testing.T) {
	s := NewStore(2) // force growth
	first := s.Insert(testVoter())

	for i := 0; i < 100; i++ {
		s.Insert(testVoter())
	}

	v := s.Get(first)
	if v == nil || v.ID != first {
		t.Fatal("first voter lost after store growth")
	}
}

func TestStoreTiersPartitionPopulation(t *testing.T) {
	s := NewStore(16)
	var ids []VoterID
	for i := 0; i < 12; i++ {
		ids = append(ids, s.Insert(testVoter()))
	}

	s.SetTier(ids[0], TierHigh)
	s.SetTier(ids[1], TierMedium)
	s.SetTier(ids[2], TierDormant)
	s.Recycle(ids[3])

	seen := make(map[VoterID]int)
	for tier := Tier(0); tier < NumTiers; tier++ {
		for _, id := range s.TierMembers(tier) {
			seen[id]++
		}
	}

	if len(seen) != s.Len() {
		t.Errorf("tier partition covers %d voters, population is %d", len(seen), s.Len())
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("voter %d appears in %d tiers", id, n)
		}
	}
	if _, ok := seen[ids[3]]; ok {
		t.Error("recycled voter still present in a tier")
	}
}

func TestStoreTierMembersSorted(t *testing.T) {
	s := NewStore(16)
	for i := 0; i < 20; i++ {
		s.Insert(testVoter())
	}

	members := s.TierMembers(TierLow)
	for i := 1; i < len(members); i++ {
		if members[i-1] >= members[i] {
			t.Fatalf("tier members not sorted: %v", members)
		}
	}
}

func TestStoreRestorePreservesIDAndTier(t *testing.T) {
	s := NewStore(4)
	v := testVoter()
	v.ID = 77
	v.Tier = TierHigh

	s.Restore(v)

	got := s.Get(77)
	if got == nil || got.Tier != TierHigh {
		t.Fatal("restored voter missing or wrong tier")
	}
	if s.NextID() != 78 {
		t.Errorf("NextID = %d after restore, want 78", s.NextID())
	}

	// Fresh inserts must not collide with restored ids.
	id := s.Insert(testVoter())
	if id <= 77 {
		t.Errorf("post-restore insert issued id %d, want > 77", id)
	}
}

func TestStoreSetNextIDOnlyAdvances(t *testing.T) {
	s := NewStore(4)
	s.Insert(testVoter()) // issues 1, nextID now 2

	s.SetNextID(50)
	if got := s.NextID(); got != 50 {
		t.Fatalf("NextID = %d after advancing watermark, want 50", got)
	}

	// Moving backwards would re-issue live IDs; it must be a no-op.
	s.SetNextID(2)
	if got := s.NextID(); got != 50 {
		t.Errorf("NextID = %d after backwards SetNextID, want 50", got)
	}

	if id := s.Insert(testVoter()); id != 50 {
		t.Errorf("insert issued id %d, want 50", id)
	}
}
