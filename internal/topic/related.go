package topic

// Index is a read-only view over topics that already exist, used to
// resolve related-topic derivation. Related-topic lookup
// is exact — it must never fuzzy-match across categories — so every
// method here returns only topics of one specific category.
type Index interface {
	// DyadsContaining returns every server:S:dyad:* key in server that
	// includes user.
	DyadsContaining(server, user string) ([]Key, error)
	// UserInChannelsForUser returns every server:S:user_in_channel:*:<user>
	// key in server for user, across all channels.
	UserInChannelsForUser(server, user string) ([]Key, error)
	// UserInChannelsForChannel returns every
	// server:S:user_in_channel:<channel>:* key in server for channel,
	// across all users.
	UserInChannelsForChannel(server, channel string) ([]Key, error)
	// ThreadsByParentChannel returns every server:S:thread:* key whose
	// parent channel is channel.
	ThreadsByParentChannel(server, channel string) ([]Key, error)
	// ServerUsersFor returns every server:*:user:<id> key across all
	// servers for the given global user id.
	ServerUsersFor(user string) ([]Key, error)
	// GlobalDyadsContaining returns every global dyad:* key that
	// includes user.
	GlobalDyadsContaining(user string) ([]Key, error)
}

// Related computes the one-hop related-topic set for k, per the table in
// The relation table below is fixed; categories not listed have no default relations
// and return an empty slice.
func Related(k Key, idx Index) ([]Key, error) {
	switch {
	case k.Category == CategoryUser && !k.Global():
		user := k.Parts[0]
		var out []Key
		dyads, err := idx.DyadsContaining(k.Server, user)
		if err != nil {
			return nil, err
		}
		out = append(out, dyads...)
		uic, err := idx.UserInChannelsForUser(k.Server, user)
		if err != nil {
			return nil, err
		}
		out = append(out, uic...)
		out = append(out, MakeUser("", user))
		return out, nil

	case k.Category == CategoryChannel:
		channel := k.Parts[0]
		var out []Key
		uic, err := idx.UserInChannelsForChannel(k.Server, channel)
		if err != nil {
			return nil, err
		}
		out = append(out, uic...)
		threads, err := idx.ThreadsByParentChannel(k.Server, channel)
		if err != nil {
			return nil, err
		}
		out = append(out, threads...)
		return out, nil

	case k.Category == CategoryDyad && !k.Global():
		a, b := k.Parts[0], k.Parts[1]
		return []Key{
			MakeUser(k.Server, a),
			MakeUser(k.Server, b),
			MakeDyad("", a, b),
		}, nil

	case k.Category == CategoryUser && k.Global():
		user := k.Parts[0]
		var out []Key
		servers, err := idx.ServerUsersFor(user)
		if err != nil {
			return nil, err
		}
		out = append(out, servers...)
		dyads, err := idx.GlobalDyadsContaining(user)
		if err != nil {
			return nil, err
		}
		out = append(out, dyads...)
		return out, nil

	default:
		return nil, nil
	}
}
