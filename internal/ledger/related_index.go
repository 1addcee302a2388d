package ledger

import (
	"github.com/watcherhq/watcher/internal/topic"
)

// The methods below satisfy topic.Index by scanning topic keys already
// present in the store. Topic keys are never fuzzy-matched: each query
// targets one category's grammar directly via a LIKE prefix/suffix,
// then the candidate rows are parsed and filtered exactly.

func (l *Ledger) DyadsContaining(server, user string) ([]topic.Key, error) {
	keys, err := l.st.KeysLike("server:" + server + ":dyad:%")
	if err != nil {
		return nil, err
	}
	return filterDyads(keys, user)
}

func (l *Ledger) GlobalDyadsContaining(user string) ([]topic.Key, error) {
	keys, err := l.st.KeysLike("dyad:%")
	if err != nil {
		return nil, err
	}
	return filterDyads(keys, user)
}

func filterDyads(keys []string, user string) ([]topic.Key, error) {
	var out []topic.Key
	for _, raw := range keys {
		k, err := topic.Parse(raw)
		if err != nil {
			continue
		}
		if len(k.Parts) != 2 {
			continue
		}
		if k.Parts[0] == user || k.Parts[1] == user {
			out = append(out, k)
		}
	}
	return out, nil
}

func (l *Ledger) UserInChannelsForUser(server, user string) ([]topic.Key, error) {
	keys, err := l.st.KeysLike("server:" + server + ":user_in_channel:%:" + user)
	if err != nil {
		return nil, err
	}
	return parseKeys(keys)
}

func (l *Ledger) UserInChannelsForChannel(server, channel string) ([]topic.Key, error) {
	keys, err := l.st.KeysLike("server:" + server + ":user_in_channel:" + channel + ":%")
	if err != nil {
		return nil, err
	}
	return parseKeys(keys)
}

func (l *Ledger) ThreadsByParentChannel(server, channel string) ([]topic.Key, error) {
	ids, err := l.st.ThreadsByChannel(server, channel)
	if err != nil {
		return nil, err
	}
	out := make([]topic.Key, 0, len(ids))
	for _, id := range ids {
		out = append(out, topic.MakeThread(server, id))
	}
	return out, nil
}

func (l *Ledger) ServerUsersFor(user string) ([]topic.Key, error) {
	keys, err := l.st.KeysLike("server:%:user:" + user)
	if err != nil {
		return nil, err
	}
	return parseKeys(keys)
}

func parseKeys(raws []string) ([]topic.Key, error) {
	out := make([]topic.Key, 0, len(raws))
	for _, raw := range raws {
		k, err := topic.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}
