package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hlab/insightchat/internal/history"
	"github.com/hlab/insightchat/internal/intent"
	"github.com/hlab/insightchat/internal/llm"
	"github.com/hlab/insightchat/internal/pipeline"
)

// ContextHandler exposes the turn pipeline: context production, chat with the
// assembled context, and the map-reduce summarization path.
type ContextHandler struct {
	Pipeline *pipeline.Pipeline
	LLM      *llm.Client
	History  history.Store
}

func (h *ContextHandler) Register(e *echo.Echo) {
	e.POST("/context", h.produceContext)
	e.POST("/ask", h.ask)
	e.POST("/summarize", h.summarize)
}

type contextRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (r *contextRequest) normalize() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if r.SessionID == "" {
		r.SessionID = "default"
	}
	return nil
}

func (h *ContextHandler) produceContext(c echo.Context) error {
	var req contextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.normalize(); err != nil {
		return err
	}

	turn := h.Pipeline.ProduceContext(c.Request().Context(), req.SessionID, req.Query)
	return c.JSON(http.StatusOK, turn)
}

type askResponse struct {
	TurnID       string `json:"turn_id"`
	Response     string `json:"response"`
	ToolsHandled bool   `json:"tools_handled"`
	ContextChars int    `json:"context_chars"`
}

// ask runs a full turn and answers with the model. A successful map-reduce
// summary is the answer on its own; otherwise the assembled context rides into
// the chat call as a transient system message.
func (h *ContextHandler) ask(c echo.Context) error {
	var req contextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.normalize(); err != nil {
		return err
	}
	ctx := c.Request().Context()

	turn := h.Pipeline.ProduceContext(ctx, req.SessionID, req.Query)

	var response string
	if len(turn.Summaries) > 0 && turn.Summaries[0].Success {
		response = turn.Summaries[0].Response
	} else {
		prior, err := h.History.Recent(ctx, req.SessionID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		msgs := prior
		if turn.Context.Text != "" {
			msgs = append([]llm.Message{{Role: "system", Content: turn.Context.Text}}, prior...)
		}
		response, err = h.LLM.Chat(ctx, "answer", req.Query, msgs)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
	}

	_ = h.History.Append(ctx, req.SessionID, llm.Message{Role: "user", Content: req.Query})
	_ = h.History.Append(ctx, req.SessionID, llm.Message{Role: "assistant", Content: response})

	return c.JSON(http.StatusOK, askResponse{
		TurnID:       turn.TurnID,
		Response:     response,
		ToolsHandled: turn.ToolsHandled,
		ContextChars: turn.Context.TotalChars,
	})
}

type summarizeRequest struct {
	Source    string `json:"source"`
	Content   string `json:"content"`
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (h *ContextHandler) summarize(c echo.Context) error {
	var req summarizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Source) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	result := h.Pipeline.SummarizeDocument(c.Request().Context(), req.SessionID, req.Source, req.Content, req.Query)
	return c.JSON(http.StatusOK, result)
}

// ToolsHandler exposes the provider registry for diagnostics.
type ToolsHandler struct {
	Router *intent.Router
}

func (h *ToolsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/health", h.health)
}

func (h *ToolsHandler) list(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"tools": h.Router.Info()})
}

func (h *ToolsHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Router.HealthCheckAll(c.Request().Context()))
}
