// Package httpapi exposes the coordinator over a JSON HTTP surface. Every
// response carries a uniform success envelope; error kinds map onto status
// codes in one place.
package httpapi

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/apperr"
	"github.com/kapu/chess-arena/internal/game"
	"github.com/kapu/chess-arena/internal/history"
	"github.com/kapu/chess-arena/internal/matchmaking"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/party"
	"github.com/kapu/chess-arena/internal/player"
)

type Server struct {
	players *player.Manager
	games   *game.Manager
	queue   *matchmaking.Queue
	parties *party.Registry
	ledger  *history.Ledger

	srv *fasthttp.Server
}

func NewServer(players *player.Manager, games *game.Manager, queue *matchmaking.Queue, parties *party.Registry, ledger *history.Ledger) *Server {
	s := &Server{players: players, games: games, queue: queue, parties: parties, ledger: ledger}
	s.srv = &fasthttp.Server{
		Handler: s.handle,
		Name:    "chess-arena",
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("http_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.srv.Shutdown() }

// Handler exposes the routing entrypoint for tests.
func (s *Server) Handler() fasthttp.RequestHandler { return s.handle }

// handle routes /api/<resource>/... by hand; the surface is small enough that
// a router dependency buys nothing.
func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	parts := splitPath(path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(ctx, apperr.NotFound("no such route"))
		return
	}
	rest := parts[2:]

	switch parts[1] {
	case "auth":
		s.routeAuth(ctx, method, rest)
	case "players":
		s.routePlayers(ctx, method, rest)
	case "friends":
		s.routeFriends(ctx, method, rest)
	case "invites":
		s.routeInvites(ctx, method, rest)
	case "matchmaking":
		s.routeMatchmaking(ctx, method, rest)
	case "games":
		s.routeGames(ctx, method, rest)
	case "parties":
		s.routeParties(ctx, method, rest)
	default:
		writeError(ctx, apperr.NotFound("no such route"))
	}
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *errorDTO `json:"error,omitempty"`
}

type errorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeData(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	_ = json.NewEncoder(ctx).Encode(envelope{Success: true, Data: v})
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if kind == "" {
		obslog.L().Error("http_internal_error", zap.Error(err))
		kind, msg = "internal", "internal error"
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	_ = json.NewEncoder(ctx).Encode(envelope{Success: false, Error: &errorDTO{Kind: string(kind), Message: msg}})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return fasthttp.StatusNotFound
	case apperr.KindIllegalInput:
		return fasthttp.StatusBadRequest
	case apperr.KindInvalidState, apperr.KindConflict:
		return fasthttp.StatusConflict
	case apperr.KindCapacity:
		return fasthttp.StatusTooManyRequests
	default:
		return fasthttp.StatusInternalServerError
	}
}

func decodeBody(ctx *fasthttp.RequestCtx, v any) error {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		return apperr.IllegalInput("malformed request body")
	}
	return nil
}

func reqCtx(ctx *fasthttp.RequestCtx) context.Context { return ctx }
