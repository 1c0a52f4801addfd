package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TobiSchelling/activelabel/internal/config"
)

type call struct {
	query string
	vars  map[string]any
}

// fakePlatform answers GraphQL requests by matching the operation name.
type fakePlatform struct {
	calls   []call
	answers map[string]string
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer test-key" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.calls = append(f.calls, call{query: req.Query, vars: req.Variables})
	for op, body := range f.answers {
		if strings.Contains(req.Query, op+"(") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
			return
		}
	}
	http.Error(w, "unexpected operation", http.StatusBadRequest)
}

func newTestClient(t *testing.T, f http.Handler, chunk int) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	t.Setenv("ACTIVELABEL_TEST_PLATFORM_KEY", "test-key")
	return NewClient(config.Labeling{
		Endpoint:        srv.URL,
		APIKeyEnv:       "ACTIVELABEL_TEST_PLATFORM_KEY",
		UploadChunkSize: chunk,
		TimeoutSec:      5,
		Breaker:         config.Breaker{MaxRequests: 1, IntervalSec: 60, TimeoutSec: 60, ReadyToTripRatio: 0.6},
	}, zap.NewNop())
}

func TestEnsureProjectFetchesExisting(t *testing.T) {
	f := &fakePlatform{answers: map[string]string{
		"ProjectsByName": `{"data": {"projects": [{"id": "p1", "name": "Tweets"}]}}`,
	}}
	c := newTestClient(t, f, 10)
	require.True(t, c.IsConfigured())

	p, created, err := c.EnsureProject(context.Background(), "Tweets")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "p1", p.ID)
	assert.Len(t, f.calls, 1)
}

func TestEnsureProjectCreatesMissing(t *testing.T) {
	f := &fakePlatform{answers: map[string]string{
		"ProjectsByName": `{"data": {"projects": []}}`,
		"CreateProject":  `{"data": {"createProject": {"id": "p2", "name": "Tweets"}}}`,
	}}
	c := newTestClient(t, f, 10)

	p, created, err := c.EnsureProject(context.Background(), "Tweets")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "p2", p.ID)
	require.Len(t, f.calls, 2)
	assert.Equal(t, "Tweets", f.calls[1].vars["name"])
}

func TestEnsureDatasetCreatesMissing(t *testing.T) {
	f := &fakePlatform{answers: map[string]string{
		"DatasetsByName": `{"data": {"datasets": []}}`,
		"CreateDataset":  `{"data": {"createDataset": {"id": "d1", "name": "Sentiment"}}}`,
	}}
	c := newTestClient(t, f, 10)

	d, created, err := c.EnsureDataset(context.Background(), "Sentiment", "p1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "d1", d.ID)
	assert.Equal(t, "p1", f.calls[1].vars["projectId"])
}

func TestGetProjectNotFound(t *testing.T) {
	f := &fakePlatform{answers: map[string]string{
		"ProjectsByName": `{"data": {"projects": []}}`,
	}}
	_, err := newTestClient(t, f, 10).GetProjectByName(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConnectOntology(t *testing.T) {
	f := &fakePlatform{answers: map[string]string{
		"UpsertOntology":  `{"data": {"upsertOntology": {"id": "o1"}}}`,
		"ConnectOntology": `{"data": {"project": {"connectOntology": {"id": "p1"}}}}`,
	}}
	c := newTestClient(t, f, 10)

	id, err := c.ConnectOntology(context.Background(), "p1", SentimentOntology("sentiment"))
	require.NoError(t, err)
	assert.Equal(t, "o1", id)
	require.Len(t, f.calls, 2)

	var normalized Ontology
	require.NoError(t, json.Unmarshal([]byte(f.calls[0].vars["normalized"].(string)), &normalized))
	require.Len(t, normalized.Classifications, 1)
	assert.Equal(t, "radio", normalized.Classifications[0].Type)
	assert.Len(t, normalized.Classifications[0].Options, 2)
	assert.Equal(t, "o1", f.calls[1].vars["ontologyId"])
}

func TestCreateDataRowsChunks(t *testing.T) {
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				DataRows []DataRowInput `json:"dataRows"`
			} `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.Variables.DataRows), 2)

		type row struct {
			ID         string `json:"id"`
			ExternalID string `json:"externalId"`
		}
		var created []row
		for _, dr := range req.Variables.DataRows {
			created = append(created, row{ID: "dr-" + dr.ExternalID, ExternalID: dr.ExternalID})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"createDataRows": map[string]any{"dataRows": created}},
		})
	})
	c := newTestClient(t, srv, 2)

	rows := []DataRowInput{
		{ExternalID: "a", RowData: "hello"},
		{ExternalID: "b", RowData: "world"},
		{ExternalID: "c", RowData: "again"},
	}
	ids, err := c.CreateDataRows(context.Background(), "d1", rows)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "dr-a", "b": "dr-b", "c": "dr-c"}, ids)
}

// chunkedRows answers createDataRows by echoing the sent rows, except for
// the chunk numbered failChunk (1-based) which gets the given body.
func chunkedRows(t *testing.T, failChunk int, failBody string) http.Handler {
	chunk := 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk++
		if chunk == failChunk {
			_, _ = w.Write([]byte(failBody))
			return
		}
		var req struct {
			Variables struct {
				DataRows []DataRowInput `json:"dataRows"`
			} `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var created []map[string]string
		for _, dr := range req.Variables.DataRows {
			created = append(created, map[string]string{"id": "dr-" + dr.ExternalID, "externalId": dr.ExternalID})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"createDataRows": map[string]any{"dataRows": created}},
		})
	})
}

func TestCreateDataRowsReturnsEarlierChunksOnError(t *testing.T) {
	c := newTestClient(t, chunkedRows(t, 2, `{"errors": [{"message": "quota exceeded"}]}`), 2)

	rows := []DataRowInput{
		{ExternalID: "a", RowData: "one"},
		{ExternalID: "b", RowData: "two"},
		{ExternalID: "c", RowData: "three"},
		{ExternalID: "d", RowData: "four"},
		{ExternalID: "e", RowData: "five"},
	}
	ids, err := c.CreateDataRows(context.Background(), "d1", rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows 2-3")
	var gqlErr *GraphQLError
	require.True(t, errors.As(err, &gqlErr))
	assert.Equal(t, []string{"quota exceeded"}, gqlErr.Messages)
	assert.Equal(t, map[string]string{"a": "dr-a", "b": "dr-b"}, ids)
}

func TestCreateDataRowsShortChunk(t *testing.T) {
	short := `{"data": {"createDataRows": {"dataRows": [{"id": "dr-c", "externalId": "c"}]}}}`
	c := newTestClient(t, chunkedRows(t, 2, short), 2)

	rows := []DataRowInput{
		{ExternalID: "a", RowData: "one"},
		{ExternalID: "b", RowData: "two"},
		{ExternalID: "c", RowData: "three"},
		{ExternalID: "d", RowData: "four"},
	}
	ids, err := c.CreateDataRows(context.Background(), "d1", rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform created 1 rows")
	assert.Equal(t, map[string]string{"a": "dr-a", "b": "dr-b"}, ids)
}

func TestSetLabelingPriority(t *testing.T) {
	f := &fakePlatform{answers: map[string]string{
		"SetLabelingParameterOverrides": `{"data": {"project": {"setLabelingParameterOverrides": {"success": true}}}}`,
	}}
	c := newTestClient(t, f, 10)

	err := c.SetLabelingPriority(context.Background(), "p1", []PriorityOverride{
		{DataRowID: "dr-1", Priority: 1},
		{DataRowID: "dr-2", Priority: 2, NumLabels: 3},
	})
	require.NoError(t, err)
	require.Len(t, f.calls, 1)

	data := f.calls[0].vars["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, float64(1), first["priority"])
	assert.Equal(t, float64(1), first["numLabels"])
	assert.Equal(t, "dr-1", first["dataRow"].(map[string]any)["id"])
}

func TestSetLabelingPriorityFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not successful", `{"data": {"project": {"setLabelingParameterOverrides": {"success": false}}}}`},
		{"graphql errors", `{"data": null, "errors": [{"message": "row not in project"}]}`},
		{"missing project", `{"data": {"project": null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakePlatform{answers: map[string]string{"SetLabelingParameterOverrides": tt.body}}
			err := newTestClient(t, f, 10).SetLabelingPriority(context.Background(), "p1",
				[]PriorityOverride{{DataRowID: "dr-1", Priority: 1}})
			assert.Error(t, err)
		})
	}
}

func TestGraphQLErrorsAreTyped(t *testing.T) {
	f := &fakePlatform{answers: map[string]string{
		"CreateProject": `{"errors": [{"message": "name taken"}, {"message": "try again"}]}`,
	}}
	_, err := newTestClient(t, f, 10).CreateProject(context.Background(), "x")

	var gqlErr *GraphQLError
	require.True(t, errors.As(err, &gqlErr))
	assert.Equal(t, []string{"name taken", "try again"}, gqlErr.Messages)
}

func TestHTTPErrorsTripBreaker(t *testing.T) {
	hits := 0
	srv := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	c := newTestClient(t, srv, 10)

	for range 3 {
		_, err := c.CreateProject(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	}
	_, err := c.CreateProject(context.Background(), "x")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, 3, hits)
}

func TestGraphQLErrorsKeepBreakerClosed(t *testing.T) {
	f := &fakePlatform{answers: map[string]string{
		"CreateProject": `{"errors": [{"message": "name taken"}]}`,
	}}
	c := newTestClient(t, f, 10)

	for range 5 {
		_, err := c.CreateProject(context.Background(), "x")
		var gqlErr *GraphQLError
		require.True(t, errors.As(err, &gqlErr))
	}
	assert.Len(t, f.calls, 5)
}

func TestUnauthorized(t *testing.T) {
	f := &fakePlatform{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	c := NewClient(config.Labeling{Endpoint: srv.URL, APIKeyEnv: "ACTIVELABEL_UNSET_KEY"}, zap.NewNop())
	assert.False(t, c.IsConfigured())
	_, err := c.GetProjectByName(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
