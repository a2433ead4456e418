package handlers

import (
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianResearch/services/analysis"
	"github.com/AleutianAI/AleutianResearch/services/analysis/library"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 1MB buffers; pipeline inputs are bounded well below this
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

func sendEvent(ws *websocket.Conn, event datatypes.PipelineEvent) error {
	err := ws.WriteJSON(event)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// wsProgress forwards run callbacks to the websocket as stage events.
// The terminal event is sent by the handler, with the final output
// attached, so RunCompleted is a no-op here.
type wsProgress struct {
	ws *websocket.Conn
}

func (p *wsProgress) StageStarted(runID string, stage analysis.StageConfig, index, total int) {
	_ = sendEvent(p.ws, datatypes.PipelineEvent{
		Type:      datatypes.EventStageStarted,
		RunID:     runID,
		Stage:     stage.Name,
		StageType: stage.Type.String(),
		Index:     index,
		Total:     total,
	})
}

func (p *wsProgress) StageCompleted(runID string, stage analysis.StageConfig, result analysis.Value, durationMs int64) {
	_ = sendEvent(p.ws, datatypes.PipelineEvent{
		Type:       datatypes.EventStageCompleted,
		RunID:      runID,
		Stage:      stage.Name,
		StageType:  stage.Type.String(),
		Output:     result.String(),
		DurationMs: durationMs,
	})
}

func (p *wsProgress) RunCompleted(string, error) {}

// HandlePipelineWS serves GET /v1/pipelines/ws: a websocket that runs
// pipelines and streams per-stage progress while they execute. Each
// message on the socket is a PipelineRunRequest; the stream answers
// with stage_started / stage_completed events and a terminal
// run_completed or error event per run.
func HandlePipelineWS(runner *analysis.Pipeline, lib *library.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionID := uuid.New().String()
		slog.Info("Pipeline websocket session started", "sessionID", sessionID)

		if err := sendEvent(ws, datatypes.PipelineEvent{
			Type:      datatypes.EventConnected,
			SessionID: sessionID,
		}); err != nil {
			return
		}

		for {
			var req datatypes.PipelineRunRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Pipeline websocket client disconnected", "sessionID", sessionID, "error", err.Error())
				break
			}

			if err := req.Validate(); err != nil {
				if sendEvent(ws, datatypes.PipelineEvent{
					Type:  datatypes.EventError,
					Error: err.Error(),
				}) != nil {
					return
				}
				continue
			}

			target, _, message := resolveRunTarget(lib, &req)
			if target == nil {
				if sendEvent(ws, datatypes.PipelineEvent{
					Type:  datatypes.EventError,
					Error: message,
				}) != nil {
					return
				}
				continue
			}

			slog.Info("Starting websocket pipeline run",
				"sessionID", sessionID, "pipeline", target.name, "stages", len(target.stages))

			result, err := runner.RunObserved(c.Request.Context(), target.stages, req.Input, &wsProgress{ws: ws})
			if err != nil {
				_, message := statusForEngineError(err)
				slog.Error("Websocket pipeline run failed",
					"sessionID", sessionID, "pipeline", target.name, "error", err)
				if sendEvent(ws, datatypes.PipelineEvent{
					Type:  datatypes.EventError,
					Error: message,
				}) != nil {
					return
				}
				continue
			}

			if sendEvent(ws, datatypes.PipelineEvent{
				Type:       datatypes.EventRunCompleted,
				RunID:      result.RunID,
				Output:     result.FinalOutput(),
				DurationMs: result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
			}) != nil {
				return
			}
		}
	}
}
