package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"jbarbier/sp-connect/internal/bootstrap"
	"jbarbier/sp-connect/internal/cli"
	"jbarbier/sp-connect/internal/client"
	"jbarbier/sp-connect/internal/config"
	"jbarbier/sp-connect/internal/metadata"
)

type runtimeState struct {
	mu  sync.RWMutex
	cfg *config.Config
	md  *metadata.Metadata
}

const sessionCookie = "sp_connect_session"

// sessionManager hands out one in-memory store per browser session, keyed by
// cookie.
type sessionManager struct {
	mu     sync.Mutex
	stores map[string]*client.MemoryStore
}

func newSessionManager() *sessionManager {
	return &sessionManager{stores: make(map[string]*client.MemoryStore)}
}

func (m *sessionManager) storeFor(w http.ResponseWriter, r *http.Request) client.SessionStore {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	} else {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[id]
	if !ok {
		store = client.NewMemoryStore()
		m.stores[id] = store
	}
	return store
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "keygen" {
		if err := cli.RunKeygen(os.Args[2:]); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "example.config.yaml"
	}

	state := &runtimeState{}
	load := func() {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid config: %v", err)
		}

		ready, err := bootstrap.NewConsistency(cfg).Validate()
		if err != nil {
			log.Fatalf("bootstrap: %v", err)
		}
		if !ready {
			log.Fatalf("bootstrap: subscription pending, restart once the IdP approved %s", cfg.SP.EntityID)
		}

		md, err := metadata.Load(cfg.IdPMetadataPath(), cfg.SPMetadataPath(), cfg.PrivateKeyPath())
		if err != nil {
			log.Fatalf("metadata: %v", err)
		}

		state.mu.Lock()
		state.cfg, state.md = cfg, md
		state.mu.Unlock()
		log.Printf("loaded config; sp=%s idp=%s", cfg.SP.EntityID, cfg.IdP.EntityID)
	}
	load()

	sessions := newSessionManager()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		state.mu.RLock()
		cfg, md := state.cfg, state.md
		state.mu.RUnlock()

		conn, err := client.New(cfg, md, sessions.storeFor(w, r))
		if err != nil {
			log.Printf("orchestrator: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		resp, err := conn.HandleRequest(r)
		if err != nil {
			log.Printf("handle %s %s: %v", r.Method, r.URL.Path, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if resp != nil {
			if err := resp.Write(w); err != nil {
				log.Printf("write response: %v", err)
			}
			return
		}

		// Authenticated and not one of ours: the demo just greets the user.
		user := conn.User()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "authenticated as %s (role %s)\n", user.Username, user.CurrentRole)
	})

	go func() {
		state.mu.RLock()
		listen := state.cfg.Server.Listen
		state.mu.RUnlock()
		log.Printf("listening on %s", listen)
		log.Fatal(http.ListenAndServe(listen, mux))
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP)
	go func() {
		for range sigc {
			load()
		}
	}()

	w, err := fsnotify.NewWatcher()
	if err == nil {
		defer w.Close()
		_ = w.Add(cfgPath)
		go func() {
			for {
				select {
				case e := <-w.Events:
					if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
						load()
					}
				case err := <-w.Errors:
					if err != nil {
						log.Printf("watch error: %v", err)
					}
				}
			}
		}()
	}

	select {}
}
