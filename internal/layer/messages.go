package layer

import (
	"time"

	"github.com/watcherhq/watcher/internal/store"
	"github.com/watcherhq/watcher/internal/topic"
)

// messagesForTopic selects the message set a fetch_messages node should
// see for a target, dispatching on the topic's category.
func messagesForTopic(st *store.Store, key topic.Key, since time.Time, limit int) ([]store.Message, error) {
	switch key.Category {
	case topic.CategoryUser:
		return messagesForUser(st, key.Server, key.Parts[0], since, limit)
	case topic.CategoryChannel:
		return st.ListMessages(store.MessageFilter{
			ChannelID: key.Parts[0], ServerID: key.Server, Since: since, ExcludeDeleted: true, Limit: limit,
		})
	case topic.CategoryDyad:
		return messagesForDyad(st, key.Server, key.Parts[0], key.Parts[1], since, limit)
	case topic.CategoryThread:
		return st.ListMessages(store.MessageFilter{
			ThreadID: key.Parts[0], ServerID: key.Server, Since: since, ExcludeDeleted: true, Limit: limit,
		})
	case topic.CategoryUserInChannel:
		return st.ListMessages(store.MessageFilter{
			ChannelID: key.Parts[0], ServerID: key.Server, AuthorIDs: []string{key.Parts[1]},
			Since: since, ExcludeDeleted: true, Limit: limit,
		})
	case topic.CategoryDyadInChannel:
		channel, a, b := key.Parts[0], key.Parts[1], key.Parts[2]
		msgs, err := st.ListMessages(store.MessageFilter{
			ChannelID: channel, ServerID: key.Server, AuthorIDs: []string{a, b}, Since: since, ExcludeDeleted: true,
		})
		if err != nil {
			return nil, err
		}
		return trimMessages(msgs, limit), nil
	case topic.CategorySubject:
		return messagesForSubject(st, key.String(), since, limit)
	case topic.CategorySelf, topic.CategoryRole, topic.CategoryEmoji:
		return nil, nil
	default:
		return nil, nil
	}
}

func messagesForUser(st *store.Store, server, userID string, since time.Time, limit int) ([]store.Message, error) {
	authored, err := st.ListMessages(store.MessageFilter{
		ServerID: server, AuthorIDs: []string{userID}, Since: since, ExcludeDeleted: true,
	})
	if err != nil {
		return nil, err
	}
	threadIDs := make(map[string]bool)
	for _, m := range authored {
		if m.ThreadID != "" {
			threadIDs[m.ThreadID] = true
		}
	}
	out := dedupeMessages(authored)
	for tid := range threadIDs {
		threadMsgs, err := st.ListMessages(store.MessageFilter{
			ThreadID: tid, ServerID: server, Since: since, ExcludeDeleted: true,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, threadMsgs...)
	}
	return trimMessages(dedupeMessages(out), limit), nil
}

func messagesForDyad(st *store.Store, server, a, b string, since time.Time, limit int) ([]store.Message, error) {
	replies, err := st.RepliesBetween(server, a, b, since)
	if err != nil {
		return nil, err
	}
	threadIDs, err := st.ThreadsSharedBetween(server, a, b, since)
	if err != nil {
		return nil, err
	}
	out := replies
	for _, tid := range threadIDs {
		threadMsgs, err := st.ListMessages(store.MessageFilter{
			ThreadID: tid, ServerID: server, Since: since, ExcludeDeleted: true,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, threadMsgs...)
	}
	return trimMessages(dedupeMessages(out), limit), nil
}

// messagesForSubject implements the two-phase subject selection: first
// the messages directly linked via the subject-source join, then recent
// messages from the topics that originally surfaced the subject.
func messagesForSubject(st *store.Store, subjectKey string, since time.Time, limit int) ([]store.Message, error) {
	sources, err := st.ListSubjectSources(subjectKey)
	if err != nil {
		return nil, err
	}
	var out []store.Message
	sourceTopics := make(map[string]bool)
	for _, rec := range sources {
		if rec.SourceMessageID != "" {
			if m, err := st.GetMessage(rec.SourceMessageID); err == nil && m != nil {
				out = append(out, *m)
			}
		}
		if rec.SourceTopicKey != "" {
			sourceTopics[rec.SourceTopicKey] = true
		}
	}
	for raw := range sourceTopics {
		k, err := topic.Parse(raw)
		if err != nil || k.Category == topic.CategorySubject {
			continue
		}
		more, err := messagesForTopic(st, k, since, perSourceTopicLimit)
		if err != nil {
			continue
		}
		out = append(out, more...)
	}
	return trimMessages(dedupeMessages(out), limit), nil
}

const perSourceTopicLimit = 20

func dedupeMessages(msgs []store.Message) []store.Message {
	seen := make(map[string]bool, len(msgs))
	out := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

func trimMessages(msgs []store.Message, limit int) []store.Message {
	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}
	return msgs[:limit]
}

// scopeMax returns "dm" if any source message was a DM, else "public" —
// an insight's sources-scope-max may never be looser than its sources.
func scopeMax(msgs []store.Message) string {
	for _, m := range msgs {
		if m.Visibility == store.ScopeDM {
			return store.ScopeDM
		}
	}
	return store.ScopePublic
}
