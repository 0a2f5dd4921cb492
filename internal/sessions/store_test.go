package sessions

import (
	"fmt"
	"testing"
	"time"

	"github.com/clipforge/clipforge/pkg/models"
)

func TestStore_GetOrCreate_AllocatesID(t *testing.T) {
	store := NewStore(nil)
	sess := store.GetOrCreate("")
	if sess.ID == "" {
		t.Fatal("expected generated session id")
	}
	if !store.Exists(sess.ID) {
		t.Error("created session not found")
	}
}

func TestStore_AppendConversation_CapsAtFifty(t *testing.T) {
	store := NewStore(nil)
	store.GetOrCreate("s1")

	for i := 0; i < 60; i++ {
		store.AppendConversation("s1", models.RoleUser, fmt.Sprintf("message %d", i))
	}

	history := store.Conversation("s1", 0)
	if len(history) != models.MaxConversationEntries {
		t.Fatalf("history = %d entries, want %d", len(history), models.MaxConversationEntries)
	}
	// Oldest entries were dropped.
	if history[0].Content != "message 10" {
		t.Errorf("oldest entry = %q, want %q", history[0].Content, "message 10")
	}
	if history[len(history)-1].Content != "message 59" {
		t.Errorf("newest entry = %q, want %q", history[len(history)-1].Content, "message 59")
	}
}

func TestStore_Conversation_TailSlice(t *testing.T) {
	store := NewStore(nil)
	store.GetOrCreate("s1")
	for i := 0; i < 20; i++ {
		store.AppendConversation("s1", models.RoleUser, fmt.Sprintf("m%d", i))
	}

	tail := store.Conversation("s1", 10)
	if len(tail) != 10 {
		t.Fatalf("tail = %d entries, want 10", len(tail))
	}
	if tail[0].Content != "m10" {
		t.Errorf("tail starts at %q, want m10", tail[0].Content)
	}
}

func TestStore_Snapshot_IsIsolated(t *testing.T) {
	store := NewStore(nil)
	store.GetOrCreate("s1")
	store.UpdateContext("s1", map[string]any{"topic": "romans"})

	snap, ok := store.Snapshot("s1")
	if !ok {
		t.Fatal("missing snapshot")
	}
	snap.Context["topic"] = "mutated"
	snap.Conversation = append(snap.Conversation, models.ConversationEntry{Content: "x"})

	snap2, _ := store.Snapshot("s1")
	if snap2.Context["topic"] != "romans" {
		t.Errorf("snapshot mutation leaked into store: %v", snap2.Context["topic"])
	}
	if len(snap2.Conversation) != 0 {
		t.Errorf("conversation mutated through snapshot")
	}
}

func TestStore_SyncFrontendState_MirrorsScript(t *testing.T) {
	store := NewStore(nil)
	store.GetOrCreate("s1")

	store.SyncFrontendState("s1", map[string]any{
		"script": "INT. COLOSSEUM - DAY",
		"page":   "editor",
	})

	snap, _ := store.Snapshot("s1")
	if snap.AIContext["script"] != "INT. COLOSSEUM - DAY" {
		t.Errorf("ai_context.script = %v, want mirrored script", snap.AIContext["script"])
	}
	if len(snap.Project.Scripts) != 1 || snap.Project.Scripts[0].Content != "INT. COLOSSEUM - DAY" {
		t.Errorf("project.scripts = %v, want one mirrored entry", snap.Project.Scripts)
	}
	if snap.FrontendState["page"] != "editor" {
		t.Errorf("frontend_state not replaced: %v", snap.FrontendState)
	}
}

func TestStore_SyncFrontendState_ScriptListShape(t *testing.T) {
	store := NewStore(nil)
	store.GetOrCreate("s1")

	store.SyncFrontendState("s1", map[string]any{
		"scripts": []any{
			map[string]any{"content": "old draft"},
			map[string]any{"content": "new draft"},
		},
	})

	snap, _ := store.Snapshot("s1")
	if snap.AIContext["script"] != "new draft" {
		t.Errorf("ai_context.script = %v, want the most recent entry", snap.AIContext["script"])
	}
}

func TestStore_ComprehensiveContext_FreshestWins(t *testing.T) {
	store := NewStore(nil)
	store.GetOrCreate("s1")

	store.MergeAIContext("s1", map[string]any{"topic": "from_ai", "mood": "calm"})
	time.Sleep(2 * time.Millisecond)
	store.UpdateContext("s1", map[string]any{"topic": "from_patch"})
	time.Sleep(2 * time.Millisecond)
	store.SyncFrontendState("s1", map[string]any{"topic": "from_frontend"})

	merged := store.ComprehensiveContext("s1")
	if merged["topic"] != "from_frontend" {
		t.Errorf("topic = %v, want the freshest bucket to win", merged["topic"])
	}
	if merged["mood"] != "calm" {
		t.Errorf("mood = %v, non-conflicting key lost", merged["mood"])
	}
}

func TestStore_ComprehensiveContext_AttachesBuckets(t *testing.T) {
	store := NewStore(nil)
	store.GetOrCreate("s1")
	store.AppendConversation("s1", models.RoleUser, "hello")
	store.MergePreferences("s1", map[string]any{"preferred_voice": "warm"})
	store.AddAsset("s1", models.AssetScripts, models.AssetRecord{Content: "script"})
	store.AppendToolExecution("s1", models.ToolExecution{Tool: "script_writer"})

	merged := store.ComprehensiveContext("s1")
	if conv, ok := merged["conversation"].([]models.ConversationEntry); !ok || len(conv) != 1 {
		t.Errorf("conversation bucket missing: %v", merged["conversation"])
	}
	prefs, ok := merged["preferences"].(map[string]any)
	if !ok || prefs["preferred_voice"] != "warm" {
		t.Errorf("preferences bucket missing: %v", merged["preferences"])
	}
	if execs, ok := merged["tool_executions"].([]models.ToolExecution); !ok || len(execs) != 1 {
		t.Errorf("tool_executions bucket missing: %v", merged["tool_executions"])
	}
}

func TestStore_EvictIdle(t *testing.T) {
	store := NewStore(nil)
	store.GetOrCreate("old")
	store.GetOrCreate("fresh")

	// Backdate the old session.
	store.mu.Lock()
	store.sessions["old"].LastActive = time.Now().UTC().Add(-time.Hour)
	store.mu.Unlock()

	evicted := store.EvictIdle(30 * time.Minute)
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("evicted = %v, want [old]", evicted)
	}
	if store.Exists("old") {
		t.Error("old session still present")
	}
	if !store.Exists("fresh") {
		t.Error("fresh session evicted")
	}
}
