package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Project is an annotation project.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Dataset is a collection of data rows attached to projects.
type Dataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

const projectsByNameQuery = `query ProjectsByName($name: String!) {
  projects(where: {name: $name}) { id name }
}`

const createProjectMutation = `mutation CreateProject($name: String!) {
  createProject(data: {name: $name}) { id name }
}`

const datasetsByNameQuery = `query DatasetsByName($name: String!) {
  datasets(where: {name: $name}) { id name }
}`

const createDatasetMutation = `mutation CreateDataset($name: String!, $projectId: ID!) {
  createDataset(data: {name: $name, projects: {connect: [{id: $projectId}]}}) { id name }
}`

// GetProjectByName returns the first project with the given name, or
// ErrNotFound.
func (c *Client) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	var data struct {
		Projects []Project `json:"projects"`
	}
	if err := c.do(ctx, "projects", projectsByNameQuery, map[string]any{"name": name}, &data); err != nil {
		return nil, err
	}
	if len(data.Projects) == 0 {
		return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	return &data.Projects[0], nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name string) (*Project, error) {
	var data struct {
		CreateProject Project `json:"createProject"`
	}
	if err := c.do(ctx, "createProject", createProjectMutation, map[string]any{"name": name}, &data); err != nil {
		return nil, err
	}
	if data.CreateProject.ID == "" {
		return nil, fmt.Errorf("createProject: response has no id")
	}
	return &data.CreateProject, nil
}

// EnsureProject fetches the named project, creating it when absent. The
// bool reports whether it was created.
func (c *Client) EnsureProject(ctx context.Context, name string) (*Project, bool, error) {
	p, err := c.GetProjectByName(ctx, name)
	if err == nil {
		return p, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}
	p, err = c.CreateProject(ctx, name)
	if err != nil {
		return nil, false, err
	}
	c.logger.Info("Created project", zap.String("name", name), zap.String("id", p.ID))
	return p, true, nil
}

// GetDatasetByName returns the first dataset with the given name, or
// ErrNotFound.
func (c *Client) GetDatasetByName(ctx context.Context, name string) (*Dataset, error) {
	var data struct {
		Datasets []Dataset `json:"datasets"`
	}
	if err := c.do(ctx, "datasets", datasetsByNameQuery, map[string]any{"name": name}, &data); err != nil {
		return nil, err
	}
	if len(data.Datasets) == 0 {
		return nil, fmt.Errorf("dataset %q: %w", name, ErrNotFound)
	}
	return &data.Datasets[0], nil
}

// CreateDataset creates a dataset attached to a project.
func (c *Client) CreateDataset(ctx context.Context, name, projectID string) (*Dataset, error) {
	var data struct {
		CreateDataset Dataset `json:"createDataset"`
	}
	vars := map[string]any{"name": name, "projectId": projectID}
	if err := c.do(ctx, "createDataset", createDatasetMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.CreateDataset.ID == "" {
		return nil, fmt.Errorf("createDataset: response has no id")
	}
	return &data.CreateDataset, nil
}

// EnsureDataset fetches the named dataset, creating it when absent.
func (c *Client) EnsureDataset(ctx context.Context, name, projectID string) (*Dataset, bool, error) {
	d, err := c.GetDatasetByName(ctx, name)
	if err == nil {
		return d, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}
	d, err = c.CreateDataset(ctx, name, projectID)
	if err != nil {
		return nil, false, err
	}
	c.logger.Info("Created dataset", zap.String("name", name), zap.String("id", d.ID))
	return d, true, nil
}

// Ontology is the editor configuration: a set of classification questions.
type Ontology struct {
	Name            string           `json:"-"`
	Tools           []any            `json:"tools"`
	Classifications []Classification `json:"classifications"`
}

// Classification is one question shown to annotators.
type Classification struct {
	Type         string   `json:"type"` // radio, checklist, text
	Name         string   `json:"name"`
	Instructions string   `json:"instructions"`
	Required     bool     `json:"required"`
	Options      []Option `json:"options"`
}

// Option is one answer of a classification.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SentimentOntology is a single required radio question with positive and
// negative answers.
func SentimentOntology(name string) Ontology {
	return Ontology{
		Name:  name,
		Tools: []any{},
		Classifications: []Classification{{
			Type:         "radio",
			Name:         "sentiment",
			Instructions: "Is the sentiment of this tweet positive or negative?",
			Required:     true,
			Options: []Option{
				{Value: "positive", Label: "Positive"},
				{Value: "negative", Label: "Negative"},
			},
		}},
	}
}

const upsertOntologyMutation = `mutation UpsertOntology($name: String!, $normalized: Json!) {
  upsertOntology(data: {name: $name, normalized: $normalized}) { id }
}`

const connectOntologyMutation = `mutation ConnectOntology($projectId: ID!, $ontologyId: ID!) {
  project(where: {id: $projectId}) { connectOntology(ontologyId: $ontologyId) { id } }
}`

// ConnectOntology stores the ontology and attaches it to the project's
// editor. It returns the ontology id. Calling it again with the same
// ontology name updates the stored ontology in place.
func (c *Client) ConnectOntology(ctx context.Context, projectID string, o Ontology) (string, error) {
	normalized, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshaling ontology: %w", err)
	}

	var up struct {
		UpsertOntology struct {
			ID string `json:"id"`
		} `json:"upsertOntology"`
	}
	vars := map[string]any{"name": o.Name, "normalized": string(normalized)}
	if err := c.do(ctx, "upsertOntology", upsertOntologyMutation, vars, &up); err != nil {
		return "", err
	}
	ontologyID := up.UpsertOntology.ID
	if ontologyID == "" {
		return "", fmt.Errorf("upsertOntology: response has no id")
	}

	vars = map[string]any{"projectId": projectID, "ontologyId": ontologyID}
	if err := c.do(ctx, "connectOntology", connectOntologyMutation, vars, nil); err != nil {
		return "", err
	}
	return ontologyID, nil
}

// DataRowInput is one row to upload. RowData is the text shown to
// annotators.
type DataRowInput struct {
	ExternalID string `json:"externalId"`
	RowData    string `json:"rowData"`
}

const createDataRowsMutation = `mutation CreateDataRows($datasetId: ID!, $dataRows: [DataRowCreateInput!]!) {
  createDataRows(data: {datasetId: $datasetId, dataRows: $dataRows}) {
    dataRows { id externalId }
  }
}`

// CreateDataRows uploads rows in chunks and returns the platform id of
// each row keyed by external id. Rows uploaded before a failing chunk are
// still returned alongside the error.
func (c *Client) CreateDataRows(ctx context.Context, datasetID string, rows []DataRowInput) (map[string]string, error) {
	ids := make(map[string]string, len(rows))
	for start := 0; start < len(rows); start += c.chunkSize {
		end := min(start+c.chunkSize, len(rows))

		var data struct {
			CreateDataRows struct {
				DataRows []struct {
					ID         string `json:"id"`
					ExternalID string `json:"externalId"`
				} `json:"dataRows"`
			} `json:"createDataRows"`
		}
		vars := map[string]any{"datasetId": datasetID, "dataRows": rows[start:end]}
		if err := c.do(ctx, "createDataRows", createDataRowsMutation, vars, &data); err != nil {
			return ids, fmt.Errorf("uploading rows %d-%d: %w", start, end-1, err)
		}
		created := data.CreateDataRows.DataRows
		if len(created) != end-start {
			return ids, fmt.Errorf("uploading rows %d-%d: platform created %d rows", start, end-1, len(created))
		}
		for _, dr := range created {
			ids[dr.ExternalID] = dr.ID
		}

		c.logger.Info("Uploaded data rows",
			zap.Int("chunk_rows", end-start),
			zap.Int("uploaded", len(ids)),
			zap.Int("total", len(rows)))
	}
	return ids, nil
}

// PriorityOverride sets a data row's position in the labeling queue.
// Priority 1 is labeled first.
type PriorityOverride struct {
	DataRowID string
	Priority  int
	NumLabels int
}

const setPriorityMutation = `mutation SetLabelingParameterOverrides($projectId: ID!, $data: [LabelingParameterOverrideInput!]!) {
  project(where: {id: $projectId}) {
    setLabelingParameterOverrides(data: $data) { success }
  }
}`

// SetLabelingPriority pushes queue priorities for the given rows. Anything
// other than success: true is an error.
func (c *Client) SetLabelingPriority(ctx context.Context, projectID string, overrides []PriorityOverride) error {
	if len(overrides) == 0 {
		return nil
	}
	input := make([]map[string]any, len(overrides))
	for i, o := range overrides {
		numLabels := o.NumLabels
		if numLabels <= 0 {
			numLabels = 1
		}
		input[i] = map[string]any{
			"dataRow":   map[string]string{"id": o.DataRowID},
			"priority":  o.Priority,
			"numLabels": numLabels,
		}
	}

	var data struct {
		Project *struct {
			SetLabelingParameterOverrides struct {
				Success bool `json:"success"`
			} `json:"setLabelingParameterOverrides"`
		} `json:"project"`
	}
	vars := map[string]any{"projectId": projectID, "data": input}
	if err := c.do(ctx, "setLabelingParameterOverrides", setPriorityMutation, vars, &data); err != nil {
		return err
	}
	if data.Project == nil || !data.Project.SetLabelingParameterOverrides.Success {
		return fmt.Errorf("setLabelingParameterOverrides: platform did not report success")
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
