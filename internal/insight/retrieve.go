package insight

import (
	"fmt"
	"time"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/store"
)

// Retrieved is an insight augmented with presentation fields computed at
// retrieval time, never stored.
type Retrieved struct {
	store.Insight
	AgeString     string
	StrengthLabel string
}

// Request describes one retrieval call.
type Request struct {
	TopicKey          string
	Profile           string
	Limit             int
	IncludeQuarantine bool
}

// Retrieve runs one of the four fixed profiles against a topic's
// insights: split the limit between a recency-ordered slice and a
// strength-ordered slice, concatenate, and annotate.
func Retrieve(st *store.Store, cfg config.RetrievalConfig, req Request, now time.Time) ([]Retrieved, error) {
	profile, ok := cfg.Profiles[req.Profile]
	if !ok {
		return nil, fmt.Errorf("insight: unknown retrieval profile %q", req.Profile)
	}

	lr := int(float64(req.Limit) * profile.RecencyWeight)
	ls := req.Limit - lr

	recent, err := st.ListInsights(store.InsightFilter{
		TopicKey:          req.TopicKey,
		ExcludeQuarantine: !req.IncludeQuarantine && !profile.IncludeConflicting,
		Limit:             lr,
		OrderByStrength:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("insight: retrieve recent for %s: %w", req.TopicKey, err)
	}

	seen := make(map[string]bool, len(recent))
	for _, in := range recent {
		seen[in.ID] = true
	}

	// Over-fetch by strength to allow for ids already present in recent,
	// then trim to ls after filtering.
	strong, err := st.ListInsights(store.InsightFilter{
		TopicKey:          req.TopicKey,
		ExcludeQuarantine: !req.IncludeQuarantine && !profile.IncludeConflicting,
		Limit:             ls + len(recent),
		OrderByStrength:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("insight: retrieve strong for %s: %w", req.TopicKey, err)
	}

	out := make([]Retrieved, 0, req.Limit)
	for _, in := range recent {
		out = append(out, annotate(in, now))
	}
	added := 0
	for _, in := range strong {
		if added >= ls {
			break
		}
		if seen[in.ID] {
			continue
		}
		seen[in.ID] = true
		out = append(out, annotate(in, now))
		added++
	}
	return out, nil
}

// RetrieveGlobal implements the global-user retrieval rule: pull from
// the global topic and from every server-scoped instance of the same
// user by pattern, split 50/50 with the global hits.
func RetrieveGlobal(st *store.Store, cfg config.RetrievalConfig, userID string, req Request, now time.Time) ([]Retrieved, error) {
	half := req.Limit / 2
	otherHalf := req.Limit - half

	globalReq := req
	globalReq.Limit = half
	globalHits, err := Retrieve(st, cfg, globalReq, now)
	if err != nil {
		return nil, err
	}

	serverKeys, err := st.KeysLike("server:%:user:" + userID)
	if err != nil {
		return nil, fmt.Errorf("insight: retrieve global for %s: %w", userID, err)
	}

	var scoped []Retrieved
	if len(serverKeys) > 0 {
		perKey := otherHalf
		if perKey < 1 {
			perKey = 1
		}
		for _, key := range serverKeys {
			scopedReq := req
			scopedReq.TopicKey = key
			scopedReq.Limit = perKey
			hits, err := Retrieve(st, cfg, scopedReq, now)
			if err != nil {
				return nil, err
			}
			scoped = append(scoped, hits...)
			if len(scoped) >= otherHalf {
				break
			}
		}
		if len(scoped) > otherHalf {
			scoped = scoped[:otherHalf]
		}
	}

	return append(globalHits, scoped...), nil
}

func annotate(in store.Insight, now time.Time) Retrieved {
	return Retrieved{
		Insight:       in,
		AgeString:     ageString(now.Sub(in.CreatedAt)),
		StrengthLabel: strengthLabel(in.Strength),
	}
}

func strengthLabel(strength float64) string {
	switch {
	case strength >= 8:
		return "strong"
	case strength >= 5:
		return "clear"
	case strength >= 2:
		return "fading"
	default:
		return "distant"
	}
}

func ageString(d time.Duration) string {
	switch {
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins < 1 {
			mins = 1
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%d weeks ago", int(d.Hours()/24/7))
	case d < 365*24*time.Hour:
		return fmt.Sprintf("%d months ago", int(d.Hours()/24/30))
	default:
		return fmt.Sprintf("%d years ago", int(d.Hours()/24/365))
	}
}
