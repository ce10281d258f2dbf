// Package api exposes the engine's management operations over REST:
// deploying definitions, starting, cancelling, aborting and inspecting
// process instances, replaying failed nodes and publishing events.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/project-flogo/core/support/log"

	"github.com/procflow/engine"
	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/model"
	"github.com/procflow/engine/service"
)

// Management is the REST management service of an engine
type Management struct {
	engine *engine.Engine
	server *Server
	logger log.Logger
}

// NewManagement creates the management service listening on addr
func NewManagement(e *engine.Engine, addr string, logger log.Logger) *Management {
	if logger == nil {
		logger = log.RootLogger()
	}

	m := &Management{engine: e, logger: logger}

	router := httprouter.New()
	router.POST("/v1/definitions", m.deployDefinition)
	router.GET("/v1/definitions", m.listDefinitions)

	router.POST("/v1/processes", m.startProcess)
	router.GET("/v1/processes", m.listProcesses)
	router.GET("/v1/processes/:id", m.getProcess)
	router.POST("/v1/processes/:id/cancel", m.cancelProcess)
	router.POST("/v1/processes/:id/abort", m.abortProcess)
	router.POST("/v1/processes/:id/nodes/:nodeId/replay", m.replayNode)

	router.POST("/v1/events", m.publishEvent)

	m.server = NewServer(addr, router)
	return m
}

// Start starts the management server
func (m *Management) Start() error {
	m.logger.Infof("Management API listening on %s", m.server.Addr)
	return m.server.Start()
}

// Stop stops the management server
func (m *Management) Stop() error {
	return m.server.Stop()
}

func (m *Management) deployDefinition(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {

	data, err := io.ReadAll(r.Body)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	def, err := m.engine.DeployJSON(data)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	m.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"name":    def.Name(),
		"version": def.Version(),
	})
}

func (m *Management) listDefinitions(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {

	defs := m.engine.Definitions()

	out := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		out = append(out, map[string]interface{}{
			"name":    def.Name(),
			"version": def.Version(),
		})
	}
	m.writeJSON(w, http.StatusOK, out)
}

type startRequest struct {
	Name      string                 `json:"name"`
	Version   int                    `json:"version,omitempty"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

func (m *Management) startProcess(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		m.writeError(w, http.StatusBadRequest, errors.New("a definition name is required"))
		return
	}

	pi, err := m.engine.StartProcess(r.Context(), req.Name, req.Version, req.Variables)
	if err != nil {
		m.writeEngineError(w, err)
		return
	}

	m.writeJSON(w, http.StatusCreated, summarize(pi))
}

func (m *Management) listProcesses(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {

	instances, err := m.engine.ListProcessInstances()
	if err != nil {
		m.writeEngineError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(instances))
	for _, pi := range instances {
		out = append(out, summarize(pi))
	}
	m.writeJSON(w, http.StatusOK, out)
}

func (m *Management) getProcess(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {

	id := ps.ByName("id")

	pi, err := m.engine.GetProcessInstance(id)
	if err == nil {
		nodes, err := m.engine.NodesForProcess(id)
		if err != nil {
			m.writeEngineError(w, err)
			return
		}
		detail := summarize(pi)
		detail["variables"] = pi.Variables
		detail["nodes"] = summarizeNodes(nodes)
		m.writeJSON(w, http.StatusOK, detail)
		return
	}

	var nf *service.NotFoundError
	if !errors.As(err, &nf) {
		m.writeEngineError(w, err)
		return
	}

	archived, archErr := m.engine.GetArchivedProcessInstance(id)
	if archErr != nil {
		m.writeEngineError(w, archErr)
		return
	}

	archivedNodes, nodesErr := m.engine.ArchivedNodesForProcess(id)
	if nodesErr != nil {
		m.writeEngineError(w, nodesErr)
		return
	}

	m.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         archived.ID,
		"defName":    archived.DefName,
		"defVersion": archived.DefVersion,
		"status":     model.ProcessStatus(archived.Status).String(),
		"startTime":  archived.StartTime,
		"endTime":    archived.EndTime,
		"variables":  archived.Variables,
		"nodes":      archivedNodes,
		"archived":   true,
	})
}

func (m *Management) cancelProcess(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	if err := m.engine.CancelProcess(ps.ByName("id")); err != nil {
		m.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (m *Management) abortProcess(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	if err := m.engine.AbortProcess(ps.ByName("id")); err != nil {
		m.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (m *Management) replayNode(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	if err := m.engine.ReplayFailedNode(ps.ByName("id"), ps.ByName("nodeId")); err != nil {
		m.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type publishRequest struct {
	Type           string                 `json:"type"`
	Name           string                 `json:"name"`
	CorrelationKey string                 `json:"correlationKey,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}

func (m *Management) publishEvent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	delivered, err := m.engine.PublishEvent(req.Type, req.Name, req.CorrelationKey, req.Payload)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	m.writeJSON(w, http.StatusOK, map[string]interface{}{"delivered": delivered})
}

func summarize(pi *instance.ProcessInstance) map[string]interface{} {
	return map[string]interface{}{
		"id":         pi.ID,
		"defName":    pi.DefName,
		"defVersion": pi.DefVersion,
		"status":     pi.Status.String(),
		"startTime":  pi.StartTime,
	}
}

func summarizeNodes(nodes []*instance.NodeInst) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(nodes))
	for _, ni := range nodes {
		out = append(out, map[string]interface{}{
			"id":     ni.ID,
			"nodeId": ni.NodeID,
			"status": ni.Status.String(),
		})
	}
	return out
}

func (m *Management) writeEngineError(w http.ResponseWriter, err error) {

	var nf *service.NotFoundError
	var illegal *service.IllegalStateError
	var conflict *service.ConcurrencyConflictError

	switch {
	case errors.As(err, &nf):
		m.writeError(w, http.StatusNotFound, err)
	case errors.As(err, &illegal):
		m.writeError(w, http.StatusConflict, err)
	case errors.As(err, &conflict):
		m.writeError(w, http.StatusConflict, err)
	default:
		m.writeError(w, http.StatusInternalServerError, err)
	}
}

func (m *Management) writeError(w http.ResponseWriter, status int, err error) {
	if status == http.StatusInternalServerError {
		m.logger.Errorf("Management request failed: %v", err)
	}
	m.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

func (m *Management) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
