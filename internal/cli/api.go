package cli

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/watcherhq/watcher/internal/insight"
	"github.com/watcherhq/watcher/internal/store"
	webassets "github.com/watcherhq/watcher/web"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP introspection surface and dashboard",
	Run:   runAPI,
}

func runAPI(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	mux := http.NewServeMux()
	registerIntrospectionRoutes(mux, a)
	registerDashboardRoutes(mux)

	addr := fmt.Sprintf("%s:%d", a.cfg.Gateway.Host, a.cfg.Gateway.Port)
	var handler http.Handler = mux
	if a.cfg.Gateway.AuthToken != "" {
		handler = requireAuthToken(a.cfg.Gateway.AuthToken, mux)
	}

	printHeader("API Server")
	fmt.Printf("listening on http://%s\n", addr)
	if a.cfg.Gateway.TLSCert != "" && a.cfg.Gateway.TLSKey != "" {
		err = http.ListenAndServeTLS(addr, a.cfg.Gateway.TLSCert, a.cfg.Gateway.TLSKey, handler)
	} else {
		err = http.ListenAndServe(addr, handler)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

// requireAuthToken gates every route but /health behind a bearer token,
// the same exemption the teacher's dashboard auth wrapper makes for its
// own unauthenticated status endpoint.
func requireAuthToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func registerIntrospectionRoutes(mux *http.ServeMux, a *app) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := a.st.Health(); err != nil {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
			return
		}
		version, err := a.st.CurrentVersion()
		if err != nil {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok", "schema_version": version})
	})

	mux.HandleFunc("/insights/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "q is required")
			return
		}
		limit := queryInt(r, "limit", 50)
		results, err := a.st.SearchInsights(q, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"insights": results})
	})

	mux.HandleFunc("/insights/", func(w http.ResponseWriter, r *http.Request) {
		topicKey := strings.TrimPrefix(r.URL.Path, "/insights/")
		if topicKey == "" {
			httpError(w, http.StatusNotFound, "topic key required")
			return
		}
		profile := r.URL.Query().Get("profile")
		if profile == "" {
			profile = "default"
		}
		req := insight.Request{
			TopicKey:          topicKey,
			Profile:           profile,
			Limit:             queryInt(r, "limit", 20),
			IncludeQuarantine: queryBool(r, "include_quarantined", false),
		}
		results, err := insight.Retrieve(a.st, a.cfg.Retrieval, req, time.Now().UTC())
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"topic_key": topicKey, "insights": results})
	})

	mux.HandleFunc("/insights", func(w http.ResponseWriter, r *http.Request) {
		f := insightFilterFromQuery(r)
		results, err := a.st.ListInsights(f)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"insights": results})
	})

	mux.HandleFunc("/salience/groups", func(w http.ResponseWriter, r *http.Request) {
		groups := make(map[string]float64, len(a.cfg.Salience.BudgetGroups))
		for name := range a.cfg.Salience.BudgetGroups {
			balances, err := a.st.BalancesForCategory(name, "*")
			if err != nil {
				continue
			}
			var total float64
			for _, b := range balances {
				total += b
			}
			groups[name] = total
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"groups": groups})
	})

	mux.HandleFunc("/salience/", func(w http.ResponseWriter, r *http.Request) {
		topicKey := strings.TrimPrefix(r.URL.Path, "/salience/")
		if topicKey == "" {
			httpError(w, http.StatusNotFound, "topic key required")
			return
		}
		balance, err := a.lg.Balance(topicKey)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries, err := a.st.ListLedgerEntries(topicKey, queryInt(r, "transaction_limit", 50))
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"topic_key": topicKey,
			"balance":   balance,
			"entries":   entries,
		})
	})

	mux.HandleFunc("/salience", func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 100)
		var (
			balances map[string]float64
			err      error
		)
		if group := r.URL.Query().Get("group"); group != "" {
			balances, err = a.st.BalancesForCategory(group, "*")
		} else {
			balances, err = a.st.AllBalances(limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"balances": balances})
	})

	mux.HandleFunc("/runs/stats/summary", func(w http.ResponseWriter, r *http.Request) {
		days := queryInt(r, "days", 7)
		since := time.Now().UTC().AddDate(0, 0, -days)
		summary, err := a.st.SummarizeRuns(since)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, summary)
	})

	mux.HandleFunc("/runs/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/runs/")
		if id == "" {
			httpError(w, http.StatusNotFound, "run id required")
			return
		}
		run, err := a.st.GetRun(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if run == nil {
			httpError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, r, http.StatusOK, run)
	})

	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		f := runFilterFromQuery(r)
		runs, err := a.st.ListRuns(f)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"runs": runs})
	})
}

// registerDashboardRoutes serves the embedded read-only dashboard pages
// and lets its scripts talk to the introspection routes above directly.
func registerDashboardRoutes(mux *http.ServeMux) {
	sub, err := fs.Sub(webassets.Files, ".")
	if err != nil {
		return
	}
	fileServer := http.FileServer(http.FS(sub))
	mux.Handle("/", fileServer)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if queryBool(r, "readable", false) {
		enc.SetIndent("", "  ")
	}
	enc.Encode(v)
}

// insightFilterFromQuery builds a store.InsightFilter from the
// "/insights" route's category/since/offset/limit query parameters.
func insightFilterFromQuery(r *http.Request) store.InsightFilter {
	return store.InsightFilter{
		Category: r.URL.Query().Get("category"),
		Since:    queryTime(r, "since"),
		Limit:    queryInt(r, "limit", 100),
		Offset:   queryInt(r, "offset", 0),
	}
}

// runFilterFromQuery builds a store.RunFilter from the "/runs" route's
// layer_name/status/since/offset/limit query parameters.
func runFilterFromQuery(r *http.Request) store.RunFilter {
	return store.RunFilter{
		LayerName: r.URL.Query().Get("layer_name"),
		Status:    r.URL.Query().Get("status"),
		Since:     queryTime(r, "since"),
		Limit:     queryInt(r, "limit", 100),
		Offset:    queryInt(r, "offset", 0),
	}
}

func queryTime(r *http.Request, key string) time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
