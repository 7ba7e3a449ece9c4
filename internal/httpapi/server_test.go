package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/kapu/chess-arena/internal/game"
	"github.com/kapu/chess-arena/internal/history"
	"github.com/kapu/chess-arena/internal/identity"
	"github.com/kapu/chess-arena/internal/matchmaking"
	"github.com/kapu/chess-arena/internal/party"
	"github.com/kapu/chess-arena/internal/player"
	"github.com/kapu/chess-arena/internal/rules"
	"github.com/kapu/chess-arena/internal/settlement"
	"github.com/kapu/chess-arena/internal/store"
)

func newTestClient(t *testing.T) *http.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	st, err := store.Open(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	players := player.NewManager(st, identity.NewLock(st), 2*time.Minute)
	ledger := history.NewLedger(st)
	games := game.NewManager(st, rules.NewEngine(), settlement.New(players, ledger))
	queue := matchmaking.NewQueue(st, games, players, 0)
	parties := party.NewRegistry(st)
	srv := NewServer(players, games, queue, parties, ledger)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, srv.Handler()) }()
	t.Cleanup(func() { _ = ln.Close() })

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(context.Context, string, string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
}

type env struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, c *http.Client, method, path string, body any) (int, env) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, "http://arena"+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var e env
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, e
}

func guest(t *testing.T, c *http.Client) (id, name string) {
	t.Helper()
	code, e := do(t, c, http.MethodPost, "/api/auth/guest", nil)
	if code != http.StatusCreated || !e.Success {
		t.Fatalf("guest failed: %d %+v", code, e)
	}
	var p struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(e.Data, &p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	return p.ID, p.Name
}

func TestAuthFlow(t *testing.T) {
	c := newTestClient(t)

	code, e := do(t, c, http.MethodPost, "/api/auth/register",
		map[string]string{"username": "alice", "password": "secret99"})
	if code != http.StatusCreated || !e.Success {
		t.Fatalf("register: %d %+v", code, e)
	}
	if bytes.Contains(e.Data, []byte("password_hash")) {
		t.Fatalf("response leaks credential hash: %s", e.Data)
	}

	code, e = do(t, c, http.MethodPost, "/api/auth/register",
		map[string]string{"username": "ALICE", "password": "other999"})
	if code != http.StatusConflict || e.Error == nil || e.Error.Kind != "conflict" {
		t.Fatalf("duplicate register: %d %+v", code, e)
	}

	code, _ = do(t, c, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "alice", "password": "secret99"})
	if code != http.StatusOK {
		t.Fatalf("login: %d", code)
	}
	code, _ = do(t, c, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "alice", "password": "nope99"})
	if code != http.StatusBadRequest {
		t.Fatalf("bad password should be 400, got %d", code)
	}
}

func TestPrivateGameOverPartyCode(t *testing.T) {
	c := newTestClient(t)
	aID, _ := guest(t, c)
	bID, _ := guest(t, c)

	code, e := do(t, c, http.MethodPost, "/api/games", map[string]string{"player_id": aID})
	if code != http.StatusCreated {
		t.Fatalf("create game: %d %+v", code, e)
	}
	var g struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		PartyCode string `json:"party_code"`
	}
	if err := json.Unmarshal(e.Data, &g); err != nil {
		t.Fatalf("decode game: %v", err)
	}
	if g.Status != "waiting" || len(g.PartyCode) != 5 {
		t.Fatalf("unexpected game: %+v", g)
	}

	code, e = do(t, c, http.MethodPost, "/api/parties/join",
		map[string]string{"player_id": bID, "code": g.PartyCode})
	if code != http.StatusOK {
		t.Fatalf("party join: %d %+v", code, e)
	}
	var joined struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(e.Data, &joined)
	if joined.Status != "ongoing" {
		t.Fatalf("game should start on join: %+v", joined)
	}

	code, _ = do(t, c, http.MethodPost, "/api/parties/join",
		map[string]string{"player_id": bID, "code": "ZZZZZ"})
	if code != http.StatusNotFound {
		t.Fatalf("unknown code should be 404, got %d", code)
	}

	cID, _ := guest(t, c)
	code, _ = do(t, c, http.MethodPost, "/api/games/"+g.ID+"/join",
		map[string]string{"player_id": cID})
	if code != http.StatusConflict {
		t.Fatalf("full game join should be 409, got %d", code)
	}
}

func TestMoveOverHTTP(t *testing.T) {
	c := newTestClient(t)
	aID, _ := guest(t, c)
	bID, _ := guest(t, c)

	_, e := do(t, c, http.MethodPost, "/api/games", map[string]string{"player_id": aID})
	var g struct {
		ID    string `json:"id"`
		White struct {
			ID string `json:"id"`
		} `json:"white"`
	}
	_ = json.Unmarshal(e.Data, &g)
	if _, e = do(t, c, http.MethodPost, "/api/games/"+g.ID+"/join",
		map[string]string{"player_id": bID}); !e.Success {
		t.Fatalf("join: %+v", e)
	}

	code, e := do(t, c, http.MethodPost, "/api/games/"+g.ID+"/move",
		map[string]string{"player_id": aID, "from": "e2", "to": "e4"})
	if code != http.StatusOK {
		t.Fatalf("move: %d %+v", code, e)
	}
	var after struct {
		Turn    string   `json:"turn"`
		History []string `json:"history"`
	}
	_ = json.Unmarshal(e.Data, &after)
	if after.Turn != "b" || len(after.History) != 1 {
		t.Fatalf("unexpected state after move: %+v", after)
	}

	code, e = do(t, c, http.MethodPost, "/api/games/"+g.ID+"/move",
		map[string]string{"player_id": aID, "from": "e4", "to": "e5"})
	if code != http.StatusConflict {
		t.Fatalf("out-of-turn should be 409, got %d %+v", code, e)
	}
	code, e = do(t, c, http.MethodPost, "/api/games/"+g.ID+"/move",
		map[string]string{"player_id": bID, "from": "e7", "to": "e3"})
	if code != http.StatusBadRequest {
		t.Fatalf("illegal move should be 400, got %d %+v", code, e)
	}
	code, _ = do(t, c, http.MethodPost, "/api/games/missing/move",
		map[string]string{"player_id": aID, "from": "e2", "to": "e4"})
	if code != http.StatusNotFound {
		t.Fatalf("unknown game should be 404, got %d", code)
	}
}

func TestMatchmakingOverHTTP(t *testing.T) {
	c := newTestClient(t)
	aID, _ := guest(t, c)
	bID, _ := guest(t, c)

	_, e := do(t, c, http.MethodPost, "/api/matchmaking/find", map[string]string{"player_id": aID})
	var res struct {
		Status string `json:"status"`
		GameID string `json:"game_id"`
	}
	_ = json.Unmarshal(e.Data, &res)
	if res.Status != "searching" {
		t.Fatalf("first find: %+v", res)
	}

	_, e = do(t, c, http.MethodPost, "/api/matchmaking/find", map[string]string{"player_id": bID})
	_ = json.Unmarshal(e.Data, &res)
	if res.Status != "matched" || res.GameID == "" {
		t.Fatalf("second find: %+v", res)
	}

	_, e = do(t, c, http.MethodPost, "/api/matchmaking/status", map[string]string{"player_id": aID})
	_ = json.Unmarshal(e.Data, &res)
	if res.Status != "matched" {
		t.Fatalf("waiter status: %+v", res)
	}
}

func TestInviteFlow(t *testing.T) {
	c := newTestClient(t)
	aID, _ := guest(t, c)
	bID, _ := guest(t, c)

	code, e := do(t, c, http.MethodPost, "/api/invites/send",
		map[string]string{"from_id": aID, "to_id": bID})
	if code != http.StatusCreated {
		t.Fatalf("invite send: %d %+v", code, e)
	}
	var g struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(e.Data, &g)

	_, e = do(t, c, http.MethodGet, "/api/players/"+bID, nil)
	var p struct {
		IncomingGameInvitations []struct {
			GameID string `json:"game_id"`
		} `json:"incoming_game_invitations"`
	}
	_ = json.Unmarshal(e.Data, &p)
	if len(p.IncomingGameInvitations) != 1 || p.IncomingGameInvitations[0].GameID != g.ID {
		t.Fatalf("invitation not delivered: %+v", p)
	}

	// joining the invited game consumes the invitation
	if _, e = do(t, c, http.MethodPost, "/api/games/"+g.ID+"/join",
		map[string]string{"player_id": bID}); !e.Success {
		t.Fatalf("join invited game: %+v", e)
	}
	_, e = do(t, c, http.MethodGet, "/api/players/"+bID, nil)
	_ = json.Unmarshal(e.Data, &p)
	if len(p.IncomingGameInvitations) != 0 {
		t.Fatalf("invitation not consumed: %+v", p)
	}
}

func TestUnknownRoute(t *testing.T) {
	c := newTestClient(t)
	code, e := do(t, c, http.MethodGet, "/api/nope", nil)
	if code != http.StatusNotFound || e.Success {
		t.Fatalf("unknown route: %d %+v", code, e)
	}
}
