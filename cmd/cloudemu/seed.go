package main

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/cloudemu/cloudemu/internal/app"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

// seedDemoProject creates a single project and bucket so a freshly
// started emulator has something to point a client at immediately.
func seedDemoProject(a *app.App) error {
	now := cmn.RealClock{}.Now()
	p := &model.Project{
		ID:            "demo-project",
		DisplayName:   "Demo Project",
		ProjectNumber: now.UnixNano(),
		CreatedAt:     now,
	}
	if err := a.Projects.Create(p); err != nil {
		return fmt.Errorf("create demo project: %w", err)
	}

	b := &model.Bucket{
		ID:           cmn.NewID(),
		ProjectID:    p.ID,
		Name:         "demo-bucket",
		Location:     "US",
		StorageClass: "STANDARD",
		ACL:          model.ACLPrivate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Buckets.Create(b); err != nil {
		return fmt.Errorf("create demo bucket: %w", err)
	}

	glog.Infof("seeded project %q and bucket %q", p.ID, b.Name)
	return nil
}
