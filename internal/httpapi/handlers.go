package httpapi

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/kapu/chess-arena/internal/apperr"
	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/game"
	"github.com/kapu/chess-arena/internal/player"
)

// profileView is the client-facing shape of a player, credential hash omitted.
type profileView struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	GamesPlayed int `json:"games_played"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Draws       int `json:"draws"`

	Friends                 []string                `json:"friends"`
	IncomingFriendRequests  []player.FriendRequest  `json:"incoming_friend_requests"`
	SentFriendRequests      []string                `json:"sent_friend_requests"`
	IncomingGameInvitations []player.GameInvitation `json:"incoming_game_invitations"`

	Online        bool      `json:"online"`
	CurrentGameID string    `json:"current_game_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Server) view(p *player.Profile) profileView {
	return profileView{
		ID:                      p.ID,
		Name:                    p.Name,
		GamesPlayed:             p.GamesPlayed,
		Wins:                    p.Wins,
		Losses:                  p.Losses,
		Draws:                   p.Draws,
		Friends:                 orEmpty(p.Friends),
		IncomingFriendRequests:  orEmptyT(p.IncomingFriendRequests),
		SentFriendRequests:      orEmpty(p.SentFriendRequests),
		IncomingGameInvitations: orEmptyT(p.IncomingGameInvitations),
		Online:                  s.players.Online(p),
		CurrentGameID:           p.CurrentGameID,
		CreatedAt:               p.CreatedAt,
	}
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyT[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func (s *Server) routeAuth(ctx *fasthttp.RequestCtx, method string, rest []string) {
	if method != fasthttp.MethodPost || len(rest) != 1 {
		writeError(ctx, apperr.NotFound("no such route"))
		return
	}
	switch rest[0] {
	case "register":
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		p, err := s.players.Register(reqCtx(ctx), req.Username, req.Password)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusCreated, s.view(p))
	case "login":
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		p, err := s.players.Login(reqCtx(ctx), req.Username, req.Password)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, s.view(p))
	case "guest":
		p, err := s.players.Guest(reqCtx(ctx))
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusCreated, s.view(p))
	default:
		writeError(ctx, apperr.NotFound("no such route"))
	}
}

func (s *Server) routePlayers(ctx *fasthttp.RequestCtx, method string, rest []string) {
	switch {
	case method == fasthttp.MethodGet && len(rest) == 0:
		list, err := s.players.List(reqCtx(ctx))
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, list)
	case method == fasthttp.MethodGet && len(rest) == 1:
		p, err := s.players.Get(reqCtx(ctx), rest[0])
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, s.view(p))
	case method == fasthttp.MethodGet && len(rest) == 2 && rest[1] == "history":
		if _, err := s.players.Get(reqCtx(ctx), rest[0]); err != nil {
			writeError(ctx, err)
			return
		}
		rows, err := s.ledger.List(reqCtx(ctx), rest[0])
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, rows)
	case method == fasthttp.MethodGet && len(rest) == 2 && rest[1] == "friends":
		list, err := s.players.Friends(reqCtx(ctx), rest[0])
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, list)
	case method == fasthttp.MethodPost && len(rest) == 2 && rest[1] == "heartbeat":
		if err := s.players.Heartbeat(reqCtx(ctx), rest[0]); err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(ctx, apperr.NotFound("no such route"))
	}
}

func (s *Server) routeFriends(ctx *fasthttp.RequestCtx, method string, rest []string) {
	if method != fasthttp.MethodPost || len(rest) != 1 {
		writeError(ctx, apperr.NotFound("no such route"))
		return
	}
	switch rest[0] {
	case "request":
		var req struct {
			FromID string `json:"from_id"`
			ToID   string `json:"to_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		from, err := s.players.Get(reqCtx(ctx), req.FromID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		if err := s.players.SendFriendRequest(reqCtx(ctx), from.ID, from.Name, req.ToID); err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
	case "accept":
		var req struct {
			SelfID string `json:"self_id"`
			FromID string `json:"from_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		if err := s.players.AcceptFriendRequest(reqCtx(ctx), req.SelfID, req.FromID); err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
	case "decline":
		var req struct {
			SelfID string `json:"self_id"`
			FromID string `json:"from_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		if err := s.players.DeclineFriendRequest(reqCtx(ctx), req.SelfID, req.FromID); err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
	case "remove":
		var req struct {
			SelfID   string `json:"self_id"`
			FriendID string `json:"friend_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		if err := s.players.RemoveFriend(reqCtx(ctx), req.SelfID, req.FriendID); err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(ctx, apperr.NotFound("no such route"))
	}
}

// routeInvites: sending an invite opens a waiting game owned by the sender and
// drops an invitation on the target; declining just clears the invitation.
func (s *Server) routeInvites(ctx *fasthttp.RequestCtx, method string, rest []string) {
	if method != fasthttp.MethodPost || len(rest) != 1 {
		writeError(ctx, apperr.NotFound("no such route"))
		return
	}
	switch rest[0] {
	case "send":
		var req struct {
			FromID string `json:"from_id"`
			ToID   string `json:"to_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		from, err := s.players.Get(reqCtx(ctx), req.FromID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		if _, err := s.players.Get(reqCtx(ctx), req.ToID); err != nil {
			writeError(ctx, err)
			return
		}
		g, err := s.games.Create(reqCtx(ctx), game.PlayerRef{ID: from.ID, Name: from.Name}, "")
		if err != nil {
			writeError(ctx, err)
			return
		}
		if err := s.players.SetCurrentGame(reqCtx(ctx), from.ID, g.ID); err != nil {
			writeError(ctx, err)
			return
		}
		inv := player.GameInvitation{FromID: from.ID, FromName: from.Name, GameID: g.ID}
		if err := s.players.AddGameInvitation(reqCtx(ctx), req.ToID, inv); err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusCreated, g)
	case "decline":
		var req struct {
			SelfID string `json:"self_id"`
			GameID string `json:"game_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		if err := s.players.RemoveGameInvitation(reqCtx(ctx), req.SelfID, req.GameID); err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(ctx, apperr.NotFound("no such route"))
	}
}

func (s *Server) routeMatchmaking(ctx *fasthttp.RequestCtx, method string, rest []string) {
	if method != fasthttp.MethodPost || len(rest) != 1 {
		writeError(ctx, apperr.NotFound("no such route"))
		return
	}
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, err)
		return
	}
	if _, err := s.players.Get(reqCtx(ctx), req.PlayerID); err != nil {
		writeError(ctx, err)
		return
	}
	switch rest[0] {
	case "find":
		res, err := s.queue.FindMatch(reqCtx(ctx), req.PlayerID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, res)
	case "status":
		res, err := s.queue.CheckMatch(reqCtx(ctx), req.PlayerID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, res)
	case "cancel":
		if err := s.queue.Cancel(reqCtx(ctx), req.PlayerID); err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(ctx, apperr.NotFound("no such route"))
	}
}

func (s *Server) routeGames(ctx *fasthttp.RequestCtx, method string, rest []string) {
	switch {
	case method == fasthttp.MethodPost && len(rest) == 0:
		s.createGame(ctx)
	case method == fasthttp.MethodGet && len(rest) == 1:
		g, err := s.games.Get(reqCtx(ctx), rest[0])
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, g)
	case method == fasthttp.MethodPost && len(rest) == 2:
		s.gameAction(ctx, rest[0], rest[1])
	default:
		writeError(ctx, apperr.NotFound("no such route"))
	}
}

// createGame opens a private waiting game and binds a shareable party code.
func (s *Server) createGame(ctx *fasthttp.RequestCtx) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, err)
		return
	}
	p, err := s.players.Get(reqCtx(ctx), req.PlayerID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	g, err := s.games.Create(reqCtx(ctx), game.PlayerRef{ID: p.ID, Name: p.Name}, "")
	if err != nil {
		writeError(ctx, err)
		return
	}
	code, err := s.parties.CreateCode(reqCtx(ctx), g.ID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	g, err = s.games.SetPartyCode(reqCtx(ctx), g.ID, code)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := s.players.SetCurrentGame(reqCtx(ctx), p.ID, g.ID); err != nil {
		writeError(ctx, err)
		return
	}
	writeData(ctx, fasthttp.StatusCreated, g)
}

func (s *Server) gameAction(ctx *fasthttp.RequestCtx, gameID, action string) {
	switch action {
	case "join":
		var req struct {
			PlayerID string `json:"player_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		s.joinGame(ctx, gameID, req.PlayerID)
	case "move":
		var req struct {
			PlayerID  string `json:"player_id"`
			From      string `json:"from"`
			To        string `json:"to"`
			Promotion string `json:"promotion"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		mv := domain.Move{From: req.From, To: req.To, Promotion: req.Promotion}
		g, err := s.games.Move(reqCtx(ctx), gameID, req.PlayerID, mv)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, g)
	case "chat":
		var req struct {
			PlayerID string `json:"player_id"`
			Text     string `json:"text"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		p, err := s.players.Get(reqCtx(ctx), req.PlayerID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		g, err := s.games.SendChat(reqCtx(ctx), gameID, p.ID, p.Name, req.Text)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, g)
	case "offer-draw":
		var req struct {
			PlayerID string `json:"player_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		g, err := s.games.OfferDraw(reqCtx(ctx), gameID, req.PlayerID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, g)
	case "respond-draw":
		var req struct {
			PlayerID string `json:"player_id"`
			Accept   bool   `json:"accept"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		g, err := s.games.RespondToDraw(reqCtx(ctx), gameID, req.PlayerID, req.Accept)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, g)
	case "abandon":
		var req struct {
			PlayerID string `json:"player_id"`
		}
		if err := decodeBody(ctx, &req); err != nil {
			writeError(ctx, err)
			return
		}
		g, err := s.games.Abandon(reqCtx(ctx), gameID, req.PlayerID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeData(ctx, fasthttp.StatusOK, g)
	default:
		writeError(ctx, apperr.NotFound("no such route"))
	}
}

// joinGame seats the player, clears any matching invitation and points them at
// the game.
func (s *Server) joinGame(ctx *fasthttp.RequestCtx, gameID, playerID string) {
	p, err := s.players.Get(reqCtx(ctx), playerID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	g, err := s.games.Join(reqCtx(ctx), gameID, game.PlayerRef{ID: p.ID, Name: p.Name})
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := s.players.RemoveGameInvitation(reqCtx(ctx), p.ID, g.ID); err != nil {
		writeError(ctx, err)
		return
	}
	if err := s.players.SetCurrentGame(reqCtx(ctx), p.ID, g.ID); err != nil {
		writeError(ctx, err)
		return
	}
	writeData(ctx, fasthttp.StatusOK, g)
}

// routeParties resolves a shared code and joins the caller into its game.
func (s *Server) routeParties(ctx *fasthttp.RequestCtx, method string, rest []string) {
	if method != fasthttp.MethodPost || len(rest) != 1 || rest[0] != "join" {
		writeError(ctx, apperr.NotFound("no such route"))
		return
	}
	var req struct {
		PlayerID string `json:"player_id"`
		Code     string `json:"code"`
	}
	if err := decodeBody(ctx, &req); err != nil {
		writeError(ctx, err)
		return
	}
	gameID, err := s.parties.Resolve(reqCtx(ctx), req.Code)
	if err != nil {
		writeError(ctx, err)
		return
	}
	s.joinGame(ctx, gameID, req.PlayerID)
}
