package api

import (
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/compute"
	"github.com/cloudemu/cloudemu/internal/iam"
	"github.com/cloudemu/cloudemu/internal/objectstore"
	"github.com/cloudemu/cloudemu/internal/pipeline"
	"github.com/cloudemu/cloudemu/internal/repo"
	"github.com/cloudemu/cloudemu/internal/vpc"
)

// Deps is everything the handler layer needs. It holds no logic of its
// own (stage 5 handlers call straight into stage 6/7 services and
// repositories); internal/app builds one of these and hands it to
// NewRouter.
type Deps struct {
	Pipeline *pipeline.Pipeline

	Projects *repo.ProjectRepo
	Buckets  *repo.BucketRepo

	Objects *objectstore.Service
	Signer  *objectstore.Signer

	Compute *compute.Service
	VPC     *vpc.Service
	IAM     *iam.Service
	Tokens  *iam.TokenIssuer
	Revoked *iam.RevocationList

	Clock    cmn.Clock
	BaseURL  string // e.g. "http://localhost:8080", used to build selfLinks
	AuthMode cmn.AuthMode
}
