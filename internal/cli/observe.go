package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/watcherhq/watcher/internal/store"
	"github.com/watcherhq/watcher/internal/topic"
)

// anonSentinel prefixes the contextual display id of an author or
// reactor whose identity the upstream gateway chose not to disclose.
// They still cause their channel to earn; they never earn individually.
const anonSentinel = "anon:"

// observeEvent is one line of newline-delimited JSON read from stdin (or
// --input), in the shape a chat gateway emits per message or reaction.
type observeEvent struct {
	Kind          string   `json:"kind"` // message | dm_message | reaction | thread_create
	ID            string   `json:"id"`
	Server        string   `json:"server"`
	Channel       string   `json:"channel"`
	Thread        string   `json:"thread"`
	Author        string   `json:"author"`
	Reactor       string   `json:"reactor"`
	Content       string   `json:"content"`
	ReplyTo       string   `json:"reply_to"`
	ReplyToAuthor string   `json:"reply_to_author"`
	Mentions      []string `json:"mentions"`
	Emoji         string   `json:"emoji"`
	HasMedia      bool     `json:"has_media"`
	HasLink       bool     `json:"has_link"`
	CreatedAt     string   `json:"created_at"`
}

func (e observeEvent) anonymous(id string) bool {
	return strings.HasPrefix(id, anonSentinel)
}

var observeInputPath string

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Ingest chat events and apply the earning rules",
	Long:  "Reads newline-delimited JSON events from stdin (or --input) and, for each, persists the observation and earns salience on the topics the earning rules name.",
	Run:   runObserve,
}

func init() {
	observeCmd.Flags().StringVar(&observeInputPath, "input", "", "read events from this file instead of stdin")
}

func runObserve(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "observe: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	in := os.Stdin
	if observeInputPath != "" {
		f, err := os.Open(observeInputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "observe: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	printHeader("Observe")
	processed, earned, err := observeStream(a, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "observe: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("events processed: %d\n", processed)
	fmt.Printf("earn calls made:  %d\n", earned)
}

// observeStream reads one JSON event per line and applies it. A
// malformed line is reported and skipped rather than aborting the run.
func observeStream(a *app, r io.Reader) (processed, earnCalls int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev observeEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			fmt.Fprintf(os.Stderr, "observe: skipping malformed line: %v\n", err)
			continue
		}
		n, err := applyEvent(a, ev)
		if err != nil {
			return processed, earnCalls, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		processed++
		earnCalls += n
	}
	if err := sc.Err(); err != nil {
		return processed, earnCalls, fmt.Errorf("read events: %w", err)
	}
	return processed, earnCalls, nil
}

// applyEvent persists the observation (where the event kind carries
// message content) and applies the deterministic event-to-earning
// mapping, returning how many earn calls it made.
func applyEvent(a *app, ev observeEvent) (int, error) {
	w := a.cfg.Salience.Weights
	calls := 0

	switch ev.Kind {
	case "message":
		inserted, err := insertEventMessage(a, ev, store.ScopePublic)
		if err != nil {
			return calls, err
		}
		if !inserted {
			return calls, nil
		}
		if ev.Server == "" {
			return calls, fmt.Errorf("message event requires a server id")
		}
		messageAmount := w.Message
		if ev.HasMedia && w.MediaBoost > 0 {
			messageAmount *= w.MediaBoost
		}
		if !ev.anonymous(ev.Author) {
			if _, _, err := a.lg.Earn(topic.MakeUser(ev.Server, ev.Author), messageAmount, "message", ""); err != nil {
				return calls, err
			}
			calls++
		}
		if ev.Channel != "" {
			if _, _, err := a.lg.Earn(topic.MakeChannel(ev.Server, ev.Channel), messageAmount, "message", ""); err != nil {
				return calls, err
			}
			calls++
		}
		if ev.ReplyTo != "" && ev.ReplyToAuthor != "" && !ev.anonymous(ev.Author) && !ev.anonymous(ev.ReplyToAuthor) {
			dyad := topic.MakeDyad(ev.Server, ev.Author, ev.ReplyToAuthor)
			if _, _, err := a.lg.Earn(dyad, w.Reply, "reply", ""); err != nil {
				return calls, err
			}
			calls++
		}
		for _, m := range ev.Mentions {
			if m == "" || ev.anonymous(m) {
				continue
			}
			if _, _, err := a.lg.Earn(topic.MakeUser(ev.Server, m), w.Mention, "mention", ""); err != nil {
				return calls, err
			}
			calls++
		}

	case "dm_message":
		inserted, err := insertEventMessage(a, ev, store.ScopeDM)
		if err != nil {
			return calls, err
		}
		if !inserted {
			return calls, nil
		}
		if ev.anonymous(ev.Author) {
			return calls, nil
		}
		if _, _, err := a.lg.Earn(topic.MakeUser("", ev.Author), w.DMMessage, "dm_message", ""); err != nil {
			return calls, err
		}
		calls++
		if err := a.lg.WarmUser(ev.Author); err != nil {
			return calls, err
		}

	case "reaction":
		if ev.Server == "" {
			return calls, fmt.Errorf("reaction event requires a server id")
		}
		authorAnon := ev.anonymous(ev.Author)
		reactorAnon := ev.anonymous(ev.Reactor)
		if authorAnon || reactorAnon {
			return calls, nil
		}
		if _, _, err := a.lg.Earn(topic.MakeUser(ev.Server, ev.Author), w.Reaction, "reaction", ""); err != nil {
			return calls, err
		}
		calls++
		if _, _, err := a.lg.Earn(topic.MakeUser(ev.Server, ev.Reactor), w.Reaction, "reaction", ""); err != nil {
			return calls, err
		}
		calls++
		if ev.Author != ev.Reactor {
			if _, _, err := a.lg.Earn(topic.MakeDyad(ev.Server, ev.Author, ev.Reactor), w.Reaction, "reaction", ""); err != nil {
				return calls, err
			}
			calls++
		}
		if ev.Emoji != "" {
			if _, _, err := a.lg.Earn(topic.MakeEmoji(ev.Server, ev.Emoji), w.Reaction, "reaction", ""); err != nil {
				return calls, err
			}
			calls++
		}

	case "thread_create":
		if ev.Server == "" || ev.Thread == "" {
			return calls, fmt.Errorf("thread_create event requires a server and thread id")
		}
		if !ev.anonymous(ev.Author) {
			if _, _, err := a.lg.Earn(topic.MakeUser(ev.Server, ev.Author), w.ThreadCreate, "thread_create", ""); err != nil {
				return calls, err
			}
			calls++
		}
		if _, _, err := a.lg.Earn(topic.MakeThread(ev.Server, ev.Thread), w.ThreadCreate, "thread_create", ""); err != nil {
			return calls, err
		}
		calls++

	default:
		return calls, fmt.Errorf("unrecognized event kind %q", ev.Kind)
	}

	return calls, nil
}

// insertEventMessage records the content-carrying events (message,
// dm_message) in the message table. Its inserted result is false for a
// message id already on file, the signal callers use to skip earning a
// second time for the same observation.
func insertEventMessage(a *app, ev observeEvent, visibility string) (bool, error) {
	created := time.Now().UTC()
	if ev.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, ev.CreatedAt)
		if err == nil {
			created = t
		}
	}
	return a.st.InsertMessage(&store.Message{
		ID:         ev.ID,
		ChannelID:  ev.Channel,
		ServerID:   ev.Server,
		AuthorID:   ev.Author,
		Content:    ev.Content,
		CreatedAt:  created,
		Visibility: visibility,
		ReplyTo:    ev.ReplyTo,
		ThreadID:   ev.Thread,
		HasMedia:   ev.HasMedia,
		HasLink:    ev.HasLink,
	})
}
