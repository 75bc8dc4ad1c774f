package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/records"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/syncengine"
	"github.com/starford/cardsync/internal/testutil"
)

// testEnv wires a temp store, the engine and a router with one target
// mode "tenant". A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) (*testutil.Env, http.Handler) {
	t.Helper()
	env := testutil.NewEnv(t, "tenant")
	return env, NewRouter(env.Service, authToken != "", authToken, nil)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func titleRule(enabled bool) linkage.Rule {
	return linkage.Rule{
		Name:         "titles",
		SourceModeID: "source",
		TargetModeID: "tenant",
		Enabled:      enabled,
		CardMappings: []linkage.CardMapping{{
			SourceCardID: "A",
			TargetCardID: "A",
			Enabled:      true,
			FieldMappings: []linkage.FieldMapping{
				{SourceField: "title", TargetField: "title", Enabled: true},
			},
		}},
	}
}

func TestCreateAndGetCard(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/modes/source/cards", CreateCardRequest{Title: "Top speed"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[records.Card](t, w)
	if created.ID != "A" {
		t.Errorf("id = %q, want A", created.ID)
	}

	w = do(t, router, http.MethodGet, "/modes/source/cards/A", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	card := decode[records.Card](t, w)
	if card.Title.String() != "Top speed" {
		t.Errorf("title = %q", card.Title.String())
	}

	w = do(t, router, http.MethodGet, "/modes/source/cards/next-id", nil)
	if got := decode[NextIDResponse](t, w); got.ID != "B" {
		t.Errorf("next id = %q, want B", got.ID)
	}
}

func TestCreateCardReservedValue(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/modes/source/cards", CreateCardRequest{Title: "null"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestAddOptionAndList(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/modes/source/cards", CreateCardRequest{Title: "Speed"})
	do(t, router, http.MethodPost, "/modes/source/cards", CreateCardRequest{Title: "Range"})

	w := do(t, router, http.MethodPost, "/modes/source/cards/A/options", records.OptionInput{Name: "max", Value: "120", Unit: "km/h"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add option status = %d, body = %s", w.Code, w.Body.String())
	}
	card := decode[records.Card](t, w)
	if len(card.Options) != 1 || card.Options[0].ID != "1" {
		t.Fatalf("options = %+v", card.Options)
	}

	w = do(t, router, http.MethodGet, "/modes/source/cards", nil)
	list := decode[CardListResponse](t, w)
	if list.Total != 2 || list.Cards[0].ID != "A" || list.Cards[1].ID != "B" {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestDeleteCard(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/modes/source/cards", CreateCardRequest{Title: "Speed"})

	w := do(t, router, http.MethodDelete, "/modes/source/cards/A", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/modes/source/cards/A", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("after delete = %d, want 404", w.Code)
	}
}

func TestUnknownMode(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/modes/nowhere/cards", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestModes(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/modes", CreateModeRequest{ID: "tenant-b", Name: "B"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create mode = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPost, "/modes", CreateModeRequest{ID: "tenant-b"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate mode = %d, want 409", w.Code)
	}
	w = do(t, router, http.MethodPost, "/modes", CreateModeRequest{ID: "bad id!"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid mode = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/modes", nil)
	modes := decode[[]records.Mode](t, w)
	if len(modes) != 3 || modes[0].ID != "source" {
		t.Errorf("modes = %+v", modes)
	}

	if w := do(t, router, http.MethodDelete, "/modes/source", nil); w.Code != http.StatusForbidden {
		t.Errorf("delete source = %d, want 403", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/modes/tenant-b", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete target = %d, want 204", w.Code)
	}
}

func TestExecuteRuleWritesTargetAndHistory(t *testing.T) {
	env, router := testEnv(t, "")
	env.PutCard(t, "source", "A", "Top speed")

	w := do(t, router, http.MethodPost, "/rules", titleRule(true))
	if w.Code != http.StatusCreated {
		t.Fatalf("create rule = %d, body = %s", w.Code, w.Body.String())
	}
	rule := decode[linkage.Rule](t, w)
	if rule.ID == "" {
		t.Fatal("rule id should be generated")
	}

	w = do(t, router, http.MethodPost, "/rules/"+rule.ID+"/execute", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("execute = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[syncengine.LinkageResult](t, w)
	if !res.Success || res.SyncedRecordCount != 1 || res.HistoryID == "" {
		t.Errorf("unexpected result: %+v", res)
	}

	w = do(t, router, http.MethodGet, "/modes/tenant/cards/A", nil)
	if card := decode[records.Card](t, w); card.Title.String() != "Top speed" {
		t.Errorf("target title = %q", card.Title.String())
	}

	w = do(t, router, http.MethodGet, "/history", nil)
	hist := decode[HistoryResponse](t, w)
	if len(hist.Entries) != 1 || hist.Entries[0].RuleID != rule.ID {
		t.Fatalf("history = %+v", hist.Entries)
	}
	w = do(t, router, http.MethodGet, "/history/"+res.HistoryID, nil)
	if e := decode[ledger.Entry](t, w); e.ID != res.HistoryID {
		t.Errorf("history entry = %+v", e)
	}
}

func TestExecuteRuleErrors(t *testing.T) {
	env, router := testEnv(t, "")
	disabled, err := env.Rules.Save(titleRule(false))
	if err != nil {
		t.Fatal(err)
	}

	if w := do(t, router, http.MethodPost, "/rules/"+disabled.ID+"/execute", nil); w.Code != http.StatusConflict {
		t.Errorf("disabled rule = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/rules/missing/execute", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing rule = %d, want 404", w.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	_, router := testEnv(t, "")

	bad := titleRule(true)
	bad.CardMappings[0].FieldMappings[0].Transform = "rot13"
	if w := do(t, router, http.MethodPost, "/rules", bad); w.Code != http.StatusBadRequest {
		t.Errorf("unknown transform = %d, want 400", w.Code)
	}

	self := titleRule(true)
	self.TargetModeID = "source"
	if w := do(t, router, http.MethodPost, "/rules", self); w.Code != http.StatusBadRequest {
		t.Errorf("self-sync rule = %d, want 400", w.Code)
	}

	named := titleRule(true)
	named.ID = "speed"
	if w := do(t, router, http.MethodPost, "/rules", named); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/rules", named); w.Code != http.StatusConflict {
		t.Errorf("duplicate id = %d, want 409", w.Code)
	}
}

func TestUpdateReplaceAndDeleteRules(t *testing.T) {
	_, router := testEnv(t, "")
	named := titleRule(true)
	named.ID = "speed"
	do(t, router, http.MethodPost, "/rules", named)

	named.Name = "renamed"
	w := do(t, router, http.MethodPut, "/rules/speed", named)
	if w.Code != http.StatusOK || decode[linkage.Rule](t, w).Name != "renamed" {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}

	other := titleRule(false)
	other.ID = "other"
	w = do(t, router, http.MethodPut, "/rules", ReplaceRulesRequest{Rules: []linkage.Rule{other}})
	if w.Code != http.StatusOK {
		t.Fatalf("replace = %d, body = %s", w.Code, w.Body.String())
	}
	list := decode[RuleListResponse](t, w)
	if len(list.Rules) != 1 || list.Rules[0].ID != "other" {
		t.Errorf("rules after replace = %+v", list.Rules)
	}

	if w := do(t, router, http.MethodDelete, "/rules/other", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/rules/other", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/rules/speed/export", nil); w.Code != http.StatusNotFound {
		t.Errorf("export without rule dir = %d, want 404", w.Code)
	}
}

func TestPushMakesFieldsReadOnly(t *testing.T) {
	env, router := testEnv(t, "")
	env.PutCard(t, "source", "A", "Top speed", records.Option{ID: "1", Name: records.Text("max")})

	w := do(t, router, http.MethodPost, "/push", syncengine.PushRequest{
		Initiator:    "source",
		TargetModeID: "tenant",
		SyncFields:   []string{"title", "optionName"},
		AuthFields:   []string{"optionName"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("push = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[syncengine.PushResult](t, w)
	if res.SyncedCount != 1 {
		t.Errorf("synced = %d, want 1", res.SyncedCount)
	}

	title := "local"
	w = do(t, router, http.MethodPatch, "/modes/tenant/cards/A", records.CardPatch{Title: &title})
	if w.Code != http.StatusForbidden {
		t.Errorf("edit of synced, unauthorized title = %d, want 403", w.Code)
	}
	name := "local name"
	w = do(t, router, http.MethodPatch, "/modes/tenant/cards/A", records.CardPatch{
		Options: map[string]records.OptionPatch{"1": {Name: &name}},
	})
	if w.Code != http.StatusOK {
		t.Errorf("edit of authorized option name = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/authorizations?target=tenant", nil)
	auths := decode[AuthorizationListResponse](t, w).Authorizations
	got := map[string]bool{}
	for _, a := range auths {
		got[a.Field] = a.Authorized
	}
	if len(got) != 2 || got["title"] || !got["optionName"] {
		t.Errorf("authorizations = %+v", auths)
	}
}

func TestPushRejections(t *testing.T) {
	env, router := testEnv(t, "")
	env.PutCard(t, "source", "A", "null")

	cases := []struct {
		name string
		req  syncengine.PushRequest
		want int
	}{
		{"wrong initiator", syncengine.PushRequest{Initiator: "tenant", TargetModeID: "tenant"}, http.StatusForbidden},
		{"into source", syncengine.PushRequest{Initiator: "source", TargetModeID: "source"}, http.StatusForbidden},
		{"unknown field", syncengine.PushRequest{Initiator: "source", TargetModeID: "tenant", SyncFields: []string{"color"}}, http.StatusBadRequest},
		{"reserved value", syncengine.PushRequest{Initiator: "source", TargetModeID: "tenant", SyncFields: []string{"title"}}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, "/push", tc.req); w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	w := do(t, router, http.MethodGet, "/history", nil)
	if n := len(decode[HistoryResponse](t, w).Entries); n != 0 {
		t.Errorf("rejected pushes wrote %d history entries", n)
	}
}

func TestKeys(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/keys", BuildKeyRequest{Version: "v1", Type: "env", Identifier: "AA"})
	if w.Code != http.StatusOK {
		t.Fatalf("build = %d, body = %s", w.Code, w.Body.String())
	}
	key := decode[BuildKeyResponse](t, w).Key
	if key != "cardsync:v1:envFull:AA" {
		t.Errorf("key = %q", key)
	}

	w = do(t, router, http.MethodGet, "/keys/parse?key="+key, nil)
	parsed := decode[storekey.Parsed](t, w)
	if !parsed.Valid || parsed.Identifier != "AA" || parsed.Kind != storekey.KindCard {
		t.Errorf("parsed = %+v", parsed)
	}

	w = do(t, router, http.MethodGet, "/keys/parse?key=garbage", nil)
	if w.Code != http.StatusOK || decode[storekey.Parsed](t, w).Valid {
		t.Errorf("garbage key should parse as invalid, got %d %s", w.Code, w.Body.String())
	}

	if w := do(t, router, http.MethodPost, "/keys", BuildKeyRequest{Type: "envFull", Identifier: "A"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing version = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/keys/parse", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing key param = %d, want 400", w.Code)
	}
}

func TestTransforms(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/transforms", nil)
	names := decode[TransformListResponse](t, w).Transforms
	found := false
	for _, n := range names {
		if n == "percentage" {
			found = true
		}
	}
	if !found {
		t.Errorf("builtin transforms missing: %v", names)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/push", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/modes", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/modes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/modes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/modes", nil)
	if w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// testEnvWithSSE creates a router with a stub SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	env := testutil.NewEnv(t)

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(env.Service, authEnabled, token, sseHandler)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}
