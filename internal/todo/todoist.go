package todo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/task"
)

const (
	todoistBaseURL = "https://api.todoist.com/rest/v2"
	requestTimeout = 15 * time.Second
)

// Todoist creates tasks through the Todoist REST v2 API.
type Todoist struct {
	Token     string
	ProjectID string
	BaseURL   string
	Client    *http.Client
}

func NewTodoist(token, projectID string) *Todoist {
	return &Todoist{
		Token:     token,
		ProjectID: projectID,
		BaseURL:   todoistBaseURL,
		Client:    &http.Client{Timeout: requestTimeout},
	}
}

func (td *Todoist) Name() string { return "todoist" }

type todoistCreateRequest struct {
	Content     string   `json:"content"`
	Description string   `json:"description,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

type todoistCreateResponse struct {
	ID string `json:"id"`
}

func (td *Todoist) SyncTasks(ctx context.Context, tasks []task.Task, tc TodoContext) []registry.SyncResult {
	results := make([]registry.SyncResult, 0, len(tasks))
	for _, t := range tasks {
		res := registry.SyncResult{LocalID: t.LocalID, Provider: td.Name()}

		extID, err := td.create(ctx, t, tc)
		if err != nil {
			res.Status = registry.StatusFailed
			res.Error = err.Error()
			slog.Warn("todoist task creation failed",
				"bridge", tc.Bridge, "local_id", t.LocalID, "error", err)
		} else {
			res.Status = registry.StatusCreated
			res.ExternalID = extID
		}
		results = append(results, res)

		if ctx.Err() != nil {
			break
		}
	}
	return results
}

func (td *Todoist) create(ctx context.Context, t task.Task, tc TodoContext) (string, error) {
	body := todoistCreateRequest{
		Content:     t.Title,
		Description: taskDescription(t, tc),
		ProjectID:   td.ProjectID,
		Labels:      []string{"inkbridge", "vault:" + tc.VaultName},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, td.BaseURL+"/tasks", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+td.Token)

	resp, err := td.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("todoist returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var created todoistCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("todoist response missing task id")
	}
	return created.ID, nil
}

// taskDescription renders the provenance block providers attach so a
// created task links back to its handwritten origin.
func taskDescription(t task.Task, tc TodoContext) string {
	noExt := strings.TrimSuffix(t.NotePath, ".md")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Vault: %s\n", tc.VaultName)
	fmt.Fprintf(&sb, "Note: %s (line %d)\n", t.NotePath, t.Line)
	fmt.Fprintf(&sb, "Inkbridge ID: %s\n", t.LocalID)
	if tc.NoteURL != nil {
		fmt.Fprintf(&sb, "Open: %s\n", tc.NoteURL(noExt))
	}
	return sb.String()
}
