package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/penny-assistant/penny/internal/calendar"
	"github.com/penny-assistant/penny/internal/config"
	"github.com/penny-assistant/penny/internal/lists"
	"github.com/penny-assistant/penny/internal/retrieval"
	"github.com/penny-assistant/penny/internal/storage"
)

// capabilities holds the current facades and satisfies api.Capabilities.
// A config reload swaps all three at once; in-flight requests finish on the
// facades they already fetched.
type capabilities struct {
	mu        sync.RWMutex
	lists     *lists.Service
	retrieval *retrieval.Service
	calendar  *calendar.Service
}

func (c *capabilities) Lists() *lists.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lists
}

func (c *capabilities) Retrieval() *retrieval.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retrieval
}

func (c *capabilities) Calendar() *calendar.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calendar
}

// Rebuild constructs fresh facades from the snapshot, initializes every
// tier, and swaps them in.
func (c *capabilities) Rebuild(ctx context.Context, snap config.Snapshot, store *storage.Store, log *slog.Logger) {
	ls := buildLists(snap, store, log)
	rs := buildRetrieval(snap, store, log)
	cs := buildCalendar(snap, store, log)

	ls.Initialize(ctx)
	rs.Initialize(ctx)
	cs.Initialize(ctx)

	c.mu.Lock()
	c.lists = ls
	c.retrieval = rs
	c.calendar = cs
	c.mu.Unlock()
}

// buildLists wires the lists chain: remote document store when configured,
// local SQLite always.
func buildLists(snap config.Snapshot, store *storage.Store, log *slog.Logger) *lists.Service {
	var backends []lists.Backend
	if snap.ServiceEnabled(config.ServiceDocstore) {
		svc := snap.Service(config.ServiceDocstore)
		client := lists.NewHTTPDocstore(svc.Param("base_url", ""), svc.Param("api_key", ""))
		backends = append(backends, lists.NewRemoteBackend(client, svc.Param("collection", "user_lists")))
	}
	backends = append(backends, lists.NewLocalBackend(store))
	return lists.NewService(log, backends...)
}

// buildRetrieval wires the retrieval chain: OpenAI+Weaviate when both the
// embedding and vectorstore services are enabled, local SQLite always, and
// the always-ready mock as the terminal tier.
func buildRetrieval(snap config.Snapshot, store *storage.Store, log *slog.Logger) *retrieval.Service {
	var backends []retrieval.Backend
	if snap.ServiceEnabled(config.ServiceEmbedding) && snap.ServiceEnabled(config.ServiceVectorstore) {
		embedding := snap.Service(config.ServiceEmbedding)
		vectorstore := snap.Service(config.ServiceVectorstore)
		backends = append(backends, retrieval.NewRemoteBackend(retrieval.RemoteConfig{
			WeaviateURL: vectorstore.Param("url", "http://localhost:8080"),
			Class:       vectorstore.Param("class", "PennyChunk"),
			APIKey:      embedding.Param("api_key", ""),
			EmbedModel:  embedding.Param("model", "text-embedding-3-small"),
			ChatModel:   embedding.Param("chat_model", ""),
		}))
	}
	backends = append(backends, retrieval.NewLocalBackend(store))
	backends = append(backends, retrieval.NewMockBackend())
	return retrieval.NewService(log, backends...)
}

// buildCalendar wires the calendar chain: Google Calendar when configured,
// local SQLite always.
func buildCalendar(snap config.Snapshot, store *storage.Store, log *slog.Logger) *calendar.Service {
	var backends []calendar.Backend
	if snap.ServiceEnabled(config.ServiceCalendar) {
		svc := snap.Service(config.ServiceCalendar)
		backends = append(backends, calendar.NewGoogleBackend(calendar.GoogleConfig{
			CredentialsFile: svc.Param("credentials_file", ""),
			CalendarID:      svc.Param("calendar_id", "primary"),
		}))
	}
	backends = append(backends, calendar.NewLocalBackend(store))
	return calendar.NewService(log, backends...)
}
