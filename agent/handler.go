package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/imkonsowa/restaurant-chatbot/cart"
	"github.com/imkonsowa/restaurant-chatbot/chat"
	"github.com/imkonsowa/restaurant-chatbot/menu"
	"github.com/imkonsowa/restaurant-chatbot/models"
)

const projectHeader = "X-Project"

type ChatService interface {
	HandleTurn(ctx context.Context, req *chat.Request) (*chat.Response, error)
}

type MenuCatalog interface {
	List(ctx context.Context, project, dishType string) ([]models.MenuItem, error)
	Ingredients(ctx context.Context, project string) ([]string, error)
}

type CartStore interface {
	Fetch(ctx context.Context, project, sessionID string) (cart.Cart, error)
	Upsert(ctx context.Context, project string, u cart.Upsert) (uint64, error)
}

type Handler struct {
	chat     ChatService
	menu     MenuCatalog
	carts    CartStore
	upgrader websocket.Upgrader
}

func NewHandler(turns ChatService, catalog MenuCatalog, carts CartStore) *Handler {
	return &Handler{
		chat:  turns,
		menu:  catalog,
		carts: carts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/chat", h.Chat)
	r.GET("/chat/ws", h.ChatWebSocket)
	r.GET("/menu", h.Menu)
	r.GET("/ingredients", h.Ingredients)
	r.GET("/ingredienti", h.Ingredients)
	r.GET("/getcart", h.GetCart)
	r.POST("/cart", h.SyncCart)
}

// project reads the target project from the query string, then the
// X-Project header.
func project(c *gin.Context) string {
	if p := c.Query("project"); p != "" {
		return p
	}
	return c.GetHeader(projectHeader)
}

func (h *Handler) Chat(c *gin.Context) {
	var req chat.Request

	body, err := c.GetRawData()
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.Project == "" {
		req.Project = project(c)
	}

	resp, err := h.chat.HandleTurn(c.Request.Context(), &req)
	if err != nil {
		status, reason := turnError(err)
		c.JSON(status, gin.H{"error": reason})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ChatWebSocket serves chat turns over a websocket: every text frame is a
// chat request and gets exactly one reply frame.
func (h *Handler) ChatWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	fallbackProject := project(c)
	ctx := c.Request.Context()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "err", err)
			}
			return
		}

		var req chat.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			if err := conn.WriteJSON(WebSocketsMessage{Type: MessageTypeError, Data: "Invalid JSON"}); err != nil {
				slog.Error("failed to write to ws connection", "err", err)
				return
			}
			continue
		}
		if req.Project == "" {
			req.Project = fallbackProject
		}

		msg := WebSocketsMessage{Type: MessageTypeResponse}
		resp, err := h.chat.HandleTurn(ctx, &req)
		if err != nil {
			_, msg.Data = turnError(err)
			msg.Type = MessageTypeError
		} else {
			msg.Data = resp
		}

		if err := conn.WriteJSON(msg); err != nil {
			slog.Error("failed to write to ws connection", "err", err)
			return
		}
	}
}

func turnError(err error) (int, string) {
	var chatErr *chat.Error
	if !errors.As(err, &chatErr) {
		slog.Error("chat turn failed", "err", err)
		return http.StatusInternalServerError, err.Error()
	}

	if chatErr.Code == chat.ErrorModel {
		return http.StatusBadGateway, chatErr.Reason
	}
	return http.StatusBadRequest, chatErr.Reason
}

func (h *Handler) Menu(c *gin.Context) {
	items, err := h.menu.List(c.Request.Context(), project(c), c.Query("type"))
	if err != nil {
		slog.Error("failed to list menu", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"menu": ToMenuEntries(items)})
}

func (h *Handler) Ingredients(c *gin.Context) {
	names, err := h.menu.Ingredients(c.Request.Context(), project(c))
	if err != nil {
		slog.Error("failed to list ingredients", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ingredienti": menu.Ingredients(names)})
}

func (h *Handler) GetCart(c *gin.Context) {
	sessionID := c.Query("sessionid")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing sessionid parameter"})
		return
	}

	found, err := h.carts.Fetch(c.Request.Context(), project(c), sessionID)
	if err != nil {
		slog.Error("failed to fetch cart", "err", err, "session", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	status := http.StatusOK
	if !found.Found() {
		status = http.StatusNotFound
	}
	c.JSON(status, found)
}

func (h *Handler) SyncCart(c *gin.Context) {
	var payload map[string]json.RawMessage

	body, err := c.GetRawData()
	if err == nil {
		err = json.Unmarshal(body, &payload)
	}
	if err != nil {
		slog.Error("bad cart payload", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	upsert, err := cart.ParseUpsert(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.carts.Upsert(c.Request.Context(), project(c), upsert)
	if err != nil {
		slog.Error("failed to sync cart", "err", err, "session", upsert.SessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, CartSyncedResponse{
		Status:   cart.StatusSuccess,
		Message:  "Cart data synchronized successfully",
		RecordID: id,
	})
}
