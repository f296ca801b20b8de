package api

import (
	"context"
	"net/http"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/wire"
)

// createProject handles POST /v1/projects.
func (d *Deps) createProject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req wire.CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := createProjectSchema.Validate(map[string]string{
		"projectId": req.ProjectID, "displayName": req.DisplayName,
	}); err != nil {
		return err
	}
	if _, err := d.Projects.Get(req.ProjectID); err == nil {
		return cmn.NewAlreadyExists("project %s already exists", req.ProjectID)
	}
	p := &model.Project{
		ID:            req.ProjectID,
		DisplayName:   req.DisplayName,
		ProjectNumber: d.Clock.Now().UnixNano(),
		CreatedAt:     d.Clock.Now(),
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ID
	}
	if err := d.Projects.Create(p); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, projectResource(p))
	return nil
}

func (d *Deps) getProject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	p, err := d.Projects.Get(pathVar(r, "projectID"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, projectResource(p))
	return nil
}

func (d *Deps) deleteProject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := pathVar(r, "projectID")
	if _, err := d.Projects.Get(id); err != nil {
		return err
	}
	if err := d.Projects.Delete(id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (d *Deps) listProjects(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ps, err := d.Projects.List()
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(ps))
	for _, p := range ps {
		items = append(items, projectResource(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "cloudemu#projectList", "items": items})
	return nil
}
