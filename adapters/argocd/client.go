// Package argocd wraps the GitOps controller's REST API: application
// listing and status, sync, deployment history, and rollback. All requests
// carry the bearer token. There is no sample fallback here; mutating a
// deployment on guessed data would be worse than failing.
package argocd

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsmind/opsmind/adapters"
	"github.com/opsmind/opsmind/types"
)

const backendName = "argocd"

type Config struct {
	BaseURL string
	Token   string
}

type Client struct {
	http *adapters.Client
}

func New(cfg Config) *Client {
	var opts []adapters.Option
	if cfg.Token != "" {
		opts = append(opts, adapters.WithBearerToken(cfg.Token))
	}
	return &Client{http: adapters.NewClient(backendName, cfg.BaseURL, opts...)}
}

type Application struct {
	Metadata struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
	} `json:"metadata"`
	Spec struct {
		Project string `json:"project"`
		Source  struct {
			RepoURL        string `json:"repoURL"`
			Path           string `json:"path"`
			TargetRevision string `json:"targetRevision"`
		} `json:"source"`
	} `json:"spec"`
	Status struct {
		Sync struct {
			Status   string `json:"status"`
			Revision string `json:"revision"`
		} `json:"sync"`
		Health struct {
			Status string `json:"status"`
		} `json:"health"`
		History []HistoryEntry `json:"history"`
	} `json:"status"`
}

type HistoryEntry struct {
	ID         int64  `json:"id"`
	Revision   string `json:"revision"`
	DeployedAt string `json:"deployedAt"`
}

type Project struct {
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Spec struct {
		Description string `json:"description"`
	} `json:"spec"`
}

type applicationList struct {
	Items []Application `json:"items"`
}

type projectList struct {
	Items []Project `json:"items"`
}

// ListApplications returns all applications the token can see.
func (c *Client) ListApplications(ctx context.Context) ([]Application, error) {
	var list applicationList
	if err := c.http.GetJSON(ctx, "/api/v1/applications", nil, &list); err != nil {
		adapters.RecordCall(backendName, string(types.SourceSample))
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return list.Items, nil
}

// ListOutOfSync filters the application list down to syncStatus=OutOfSync.
func (c *Client) ListOutOfSync(ctx context.Context) ([]Application, error) {
	apps, err := c.ListApplications(ctx)
	if err != nil {
		return nil, err
	}
	var out []Application
	for _, app := range apps {
		if strings.EqualFold(app.Status.Sync.Status, "OutOfSync") {
			out = append(out, app)
		}
	}
	return out, nil
}

// GetApplication fetches one application's full status.
func (c *Client) GetApplication(ctx context.Context, name string) (Application, error) {
	var app Application
	if err := c.http.GetJSON(ctx, "/api/v1/applications/"+name, nil, &app); err != nil {
		adapters.RecordCall(backendName, string(types.SourceSample))
		return Application{}, fmt.Errorf("failed to get application %q: %w", name, err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return app, nil
}

// Sync triggers a sync on the application.
func (c *Client) Sync(ctx context.Context, name string) error {
	body := map[string]any{"prune": false, "dryRun": false}
	if err := c.http.PostJSON(ctx, "/api/v1/applications/"+name+"/sync", body, nil); err != nil {
		return fmt.Errorf("failed to sync application %q: %w", name, err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return nil
}

// History returns the deployment history, newest first.
func (c *Client) History(ctx context.Context, name string) ([]HistoryEntry, error) {
	app, err := c.GetApplication(ctx, name)
	if err != nil {
		return nil, err
	}
	history := append([]HistoryEntry(nil), app.Status.History...)
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// Rollback rolls the application back to a history id and then syncs so the
// controller converges on the restored revision. historyID < 0 selects the
// previous deployment.
func (c *Client) Rollback(ctx context.Context, name string, historyID int64) (HistoryEntry, error) {
	history, err := c.History(ctx, name)
	if err != nil {
		return HistoryEntry{}, err
	}
	var target HistoryEntry
	if historyID < 0 {
		if len(history) < 2 {
			return HistoryEntry{}, fmt.Errorf("application %q has no previous deployment to roll back to", name)
		}
		target = history[1]
	} else {
		found := false
		for _, h := range history {
			if h.ID == historyID {
				target = h
				found = true
				break
			}
		}
		if !found {
			return HistoryEntry{}, fmt.Errorf("application %q has no history entry %d", name, historyID)
		}
	}

	body := map[string]any{"id": target.ID}
	if err := c.http.PostJSON(ctx, "/api/v1/applications/"+name+"/rollback", body, nil); err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to roll back application %q: %w", name, err)
	}
	if err := c.Sync(ctx, name); err != nil {
		return HistoryEntry{}, err
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return target, nil
}

// ListProjects returns the controller's projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var list projectList
	if err := c.http.GetJSON(ctx, "/api/v1/projects", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return list.Items, nil
}
