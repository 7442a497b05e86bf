package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/opsmind/opsmind/adapters/argocd"
	"github.com/opsmind/opsmind/types"
)

// ArgoCDAgent maps query verbs onto GitOps controller operations.
type ArgoCDAgent struct {
	client *argocd.Client
}

func NewArgoCDAgent(client *argocd.Client) *ArgoCDAgent {
	return &ArgoCDAgent{client: client}
}

func (a *ArgoCDAgent) Name() string { return "argocd-ops" }

func (a *ArgoCDAgent) Description() string {
	return "GitOps operations: list applications, sync, status, history, rollback, projects"
}

var appNamePattern = regexp.MustCompile(`(?i)\b(?:app(?:lication)?|deploy|sync|rollback|status|history)\s+([a-z0-9][a-z0-9-]*)`)

func (a *ArgoCDAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	lower := strings.ToLower(req.Query)
	appName := contextString(req.Context, "application")
	if appName == "" {
		if m := appNamePattern.FindStringSubmatch(req.Query); m != nil {
			appName = strings.ToLower(m[1])
		}
	}

	switch {
	case strings.Contains(lower, "rollback") || strings.Contains(lower, "롤백"):
		return a.rollback(ctx, req, appName)
	case strings.Contains(lower, "sync") || strings.Contains(lower, "deploy") || strings.Contains(lower, "배포"):
		return a.sync(ctx, appName)
	case strings.Contains(lower, "history") || strings.Contains(lower, "이력"):
		return a.history(ctx, appName)
	case strings.Contains(lower, "project") || strings.Contains(lower, "프로젝트"):
		return a.projects(ctx)
	case strings.Contains(lower, "out of sync") || strings.Contains(lower, "outofsync"):
		return a.outOfSync(ctx)
	case appName != "":
		return a.status(ctx, appName)
	default:
		return a.list(ctx)
	}
}

func (a *ArgoCDAgent) list(ctx context.Context) (types.AgentResponse, error) {
	apps, err := a.client.ListApplications(ctx)
	if err != nil {
		return types.AgentResponse{}, err
	}
	var lines []string
	for _, app := range apps {
		lines = append(lines, fmt.Sprintf("%s: sync=%s health=%s",
			app.Metadata.Name, app.Status.Sync.Status, app.Status.Health.Status))
	}
	content := "No applications found."
	if len(lines) > 0 {
		content = fmt.Sprintf("%d applications:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	return respond(content, map[string]any{"applications": apps}), nil
}

func (a *ArgoCDAgent) outOfSync(ctx context.Context) (types.AgentResponse, error) {
	apps, err := a.client.ListOutOfSync(ctx)
	if err != nil {
		return types.AgentResponse{}, err
	}
	if len(apps) == 0 {
		return respond("All applications are in sync.", nil), nil
	}
	var names []string
	for _, app := range apps {
		names = append(names, app.Metadata.Name)
	}
	return respond(fmt.Sprintf("%d applications out of sync: %s", len(names), strings.Join(names, ", ")),
		map[string]any{"applications": apps}), nil
}

func (a *ArgoCDAgent) status(ctx context.Context, appName string) (types.AgentResponse, error) {
	app, err := a.client.GetApplication(ctx, appName)
	if err != nil {
		return types.AgentResponse{}, err
	}
	content := fmt.Sprintf("%s: sync=%s (revision %s), health=%s, project=%s",
		app.Metadata.Name, app.Status.Sync.Status, shortRev(app.Status.Sync.Revision),
		app.Status.Health.Status, app.Spec.Project)
	return respond(content, map[string]any{"application": app}), nil
}

func (a *ArgoCDAgent) sync(ctx context.Context, appName string) (types.AgentResponse, error) {
	if appName == "" {
		return respond("Which application should I sync? Name one, e.g. \"sync backend\".", nil), nil
	}
	if err := a.client.Sync(ctx, appName); err != nil {
		return types.AgentResponse{}, err
	}
	return respond(fmt.Sprintf("Sync triggered for %s.", appName), map[string]any{"application": appName}), nil
}

func (a *ArgoCDAgent) history(ctx context.Context, appName string) (types.AgentResponse, error) {
	if appName == "" {
		return respond("Which application's history? Name one, e.g. \"history backend\".", nil), nil
	}
	history, err := a.client.History(ctx, appName)
	if err != nil {
		return types.AgentResponse{}, err
	}
	var lines []string
	for _, h := range history {
		lines = append(lines, fmt.Sprintf("#%d %s (%s)", h.ID, shortRev(h.Revision), h.DeployedAt))
	}
	return respond(fmt.Sprintf("Deployment history for %s:\n%s", appName, strings.Join(lines, "\n")),
		map[string]any{"history": history}), nil
}

func (a *ArgoCDAgent) rollback(ctx context.Context, req types.AgentRequest, appName string) (types.AgentResponse, error) {
	if appName == "" {
		return respond("Which application should I roll back? Name one, e.g. \"rollback backend\".", nil), nil
	}
	historyID := int64(-1)
	if raw := contextString(req.Context, "history_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			historyID = id
		}
	}
	target, err := a.client.Rollback(ctx, appName, historyID)
	if err != nil {
		return types.AgentResponse{}, err
	}
	return respond(fmt.Sprintf("Rolled back %s to deployment #%d (revision %s) and triggered a sync.",
		appName, target.ID, shortRev(target.Revision)),
		map[string]any{"application": appName, "target": target}), nil
}

func (a *ArgoCDAgent) projects(ctx context.Context) (types.AgentResponse, error) {
	projects, err := a.client.ListProjects(ctx)
	if err != nil {
		return types.AgentResponse{}, err
	}
	var names []string
	for _, p := range projects {
		names = append(names, p.Metadata.Name)
	}
	return respond(fmt.Sprintf("Projects: %s", strings.Join(names, ", ")), map[string]any{"projects": projects}), nil
}

func shortRev(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
