package insight

import (
	"testing"
	"time"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/store"
)

func seedInsight(t *testing.T, st *store.Store, topicKey string, createdAt time.Time, strength float64) string {
	t.Helper()
	in := &store.Insight{
		TopicKey:           topicKey,
		Category:           "observation",
		Content:            "note",
		SourcesScopeMax:    "public",
		CreatedAt:          createdAt,
		RunID:              "run1",
		SalienceSpent:      strength,
		StrengthAdjustment: 1,
		Strength:           strength,
		Warmth:             f(0.5),
	}
	if err := st.InsertInsight(in); err != nil {
		t.Fatalf("seed insight: %v", err)
	}
	return in.ID
}

func retrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		Profiles: map[string]config.RetrievalProfile{
			"recent":   {RecencyWeight: 0.8, StrengthWeight: 0.2},
			"deep":     {RecencyWeight: 0.3, StrengthWeight: 0.7},
			"balanced": {RecencyWeight: 0.5, StrengthWeight: 0.5},
		},
	}
}

// S6: retrieval temporal markers.
func TestRetrieveTemporalMarkers(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	topicKey := "server:S:user:A"

	i1 := seedInsight(t, st, topicKey, now.Add(-2*time.Hour), 1.0)
	i2 := seedInsight(t, st, topicKey, now.Add(-40*24*time.Hour), 9.0)

	recent, err := Retrieve(st, retrievalConfig(), Request{TopicKey: topicKey, Profile: "recent", Limit: 2}, now)
	if err != nil {
		t.Fatalf("retrieve recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != i1 || recent[1].ID != i2 {
		t.Fatalf("recent profile order = %+v, want [I1, I2]", ids(recent))
	}
	if recent[0].AgeString != "2 hours ago" {
		t.Errorf("I1 age = %q, want %q", recent[0].AgeString, "2 hours ago")
	}
	if recent[1].AgeString != "1 months ago" || recent[1].StrengthLabel != "strong" {
		t.Errorf("I2 age/strength = %q/%q, want %q/%q", recent[1].AgeString, recent[1].StrengthLabel, "1 months ago", "strong")
	}

	deep, err := Retrieve(st, retrievalConfig(), Request{TopicKey: topicKey, Profile: "deep", Limit: 2}, now)
	if err != nil {
		t.Fatalf("retrieve deep: %v", err)
	}
	if len(deep) != 2 || deep[0].ID != i2 || deep[1].ID != i1 {
		t.Fatalf("deep profile order = %+v, want [I2, I1]", ids(deep))
	}
}

// Within a single profile call, the recency slice and the strength
// slice never return the same insight twice.
func TestRetrieveNoDuplicatesWithinOneCall(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	topicKey := "server:S:user:A"

	seedInsight(t, st, topicKey, now.Add(-1*time.Hour), 2.0)
	seedInsight(t, st, topicKey, now.Add(-2*time.Hour), 4.0)
	seedInsight(t, st, topicKey, now.Add(-3*time.Hour), 6.0)
	seedInsight(t, st, topicKey, now.Add(-4*time.Hour), 8.0)

	balanced, err := Retrieve(st, retrievalConfig(), Request{TopicKey: topicKey, Profile: "balanced", Limit: 4}, now)
	if err != nil {
		t.Fatalf("retrieve balanced: %v", err)
	}
	seen := make(map[string]bool)
	for _, r := range balanced {
		if seen[r.ID] {
			t.Errorf("duplicate id %s within one retrieval call", r.ID)
		}
		seen[r.ID] = true
	}
	if len(balanced) != 4 {
		t.Errorf("balanced returned %d, want 4 (all insights, no duplicates)", len(balanced))
	}
}

func ids(rs []Retrieved) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
