package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procflow/engine"
)

const approvalDef = `
{
  "name": "approval",
  "version": 1,
  "nodes": [
    { "id": "wait", "type": "catchEvent",
      "event": { "type": "message", "name": "approved", "correlationKey": { "content": "requestId" } } }
  ],
  "transitions": []
}
`

func newTestService(t *testing.T) *httptest.Server {
	t.Helper()

	e, err := engine.New()
	require.Nil(t, err)
	require.Nil(t, e.Start())
	t.Cleanup(func() {
		_ = e.Stop()
	})

	m := NewManagement(e, "127.0.0.1:0", nil)
	srv := httptest.NewServer(m.server.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.Nil(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.Nil(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if buf.Len() > 0 {
		_ = json.Unmarshal(buf.Bytes(), &out)
	}
	return resp.StatusCode, out
}

func TestDeployAndStartOverREST(t *testing.T) {

	srv := newTestService(t)

	status, body := doJSON(t, "POST", srv.URL+"/v1/definitions", approvalDef)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "approval", body["name"])

	status, body = doJSON(t, "POST", srv.URL+"/v1/processes",
		`{"name":"approval","variables":{"requestId":"r-1"}}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "approval", body["defName"])

	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	// the instance parks on its catch event and shows up in the detail view
	assert.Eventually(t, func() bool {
		status, body = doJSON(t, "GET", srv.URL+"/v1/processes/"+id, "")
		if status != http.StatusOK {
			return false
		}
		nodes, _ := body["nodes"].([]interface{})
		if len(nodes) != 1 {
			return false
		}
		node, _ := nodes[0].(map[string]interface{})
		return node["status"] == "waiting"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPublishEventOverREST(t *testing.T) {

	srv := newTestService(t)

	status, _ := doJSON(t, "POST", srv.URL+"/v1/definitions", approvalDef)
	require.Equal(t, http.StatusCreated, status)

	status, body := doJSON(t, "POST", srv.URL+"/v1/processes",
		`{"name":"approval","variables":{"requestId":"r-7"}}`)
	require.Equal(t, http.StatusCreated, status)
	id, _ := body["id"].(string)

	assert.Eventually(t, func() bool {
		status, body = doJSON(t, "POST", srv.URL+"/v1/events",
			`{"type":"message","name":"approved","correlationKey":"r-7"}`)
		return status == http.StatusOK && body["delivered"] == float64(1)
	}, 5*time.Second, 20*time.Millisecond)

	// once terminal the instance is served from the archive
	assert.Eventually(t, func() bool {
		status, body = doJSON(t, "GET", srv.URL+"/v1/processes/"+id, "")
		return status == http.StatusOK && body["archived"] == true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "completed", body["status"])
}

func TestCancelOverREST(t *testing.T) {

	srv := newTestService(t)

	status, _ := doJSON(t, "POST", srv.URL+"/v1/definitions", approvalDef)
	require.Equal(t, http.StatusCreated, status)

	status, body := doJSON(t, "POST", srv.URL+"/v1/processes",
		`{"name":"approval","variables":{"requestId":"r-2"}}`)
	require.Equal(t, http.StatusCreated, status)
	id, _ := body["id"].(string)

	status, _ = doJSON(t, "POST", fmt.Sprintf("%s/v1/processes/%s/cancel", srv.URL, id), "")
	require.Equal(t, http.StatusAccepted, status)

	assert.Eventually(t, func() bool {
		_, body := doJSON(t, "GET", srv.URL+"/v1/processes/"+id, "")
		return body["archived"] == true && body["status"] == "cancelled"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManagementErrorMapping(t *testing.T) {

	srv := newTestService(t)

	status, body := doJSON(t, "GET", srv.URL+"/v1/processes/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, body["error"])

	status, _ = doJSON(t, "POST", srv.URL+"/v1/definitions", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, "POST", srv.URL+"/v1/processes", `{"version":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, "POST", srv.URL+"/v1/events", `{"type":"timer","name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}
