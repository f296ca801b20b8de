// Package app is the composition root: it wires config, clock,
// repositories, the content store, the container driver, the three
// control-plane services, the HTTP pipeline and router, and the
// background workers into one runnable process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/cloudemu/cloudemu/internal/api"
	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/compute"
	"github.com/cloudemu/cloudemu/internal/compute/container"
	"github.com/cloudemu/cloudemu/internal/content"
	"github.com/cloudemu/cloudemu/internal/iam"
	"github.com/cloudemu/cloudemu/internal/objectstore"
	"github.com/cloudemu/cloudemu/internal/pipeline"
	"github.com/cloudemu/cloudemu/internal/repo"
	"github.com/cloudemu/cloudemu/internal/vpc"
)

// App holds every long-lived collaborator plus the background workers
// that need an explicit Run(ctx).
type App struct {
	Config *cmn.Config
	Router http.Handler

	Objects  *objectstore.Service
	Compute  *compute.Service
	VPC      *vpc.Service
	IAM      *iam.Service

	Projects *repo.ProjectRepo
	Buckets  *repo.BucketRepo

	lifecycle *objectstore.LifecycleWorker
	reconciler *compute.Reconciler

	metaStore *repo.Store
}

// New builds a fully wired App from cfg. It opens the metadata store and
// content store, constructs every repository and service, and assembles
// the HTTP router behind the pipeline - but starts nothing; call
// Run to start the background workers and serve HTTP.
func New(cfg *cmn.Config, dbPath string) (*App, error) {
	clock := cmn.RealClock{}

	store, err := repo.Open(dbPath)
	if err != nil {
		return nil, cmn.WrapInternal(err, "open metadata store")
	}

	cs, err := content.New(cfg.Storage.Root)
	if err != nil {
		return nil, cmn.WrapInternal(err, "open content store at %s", cfg.Storage.Root)
	}

	projects := repo.NewProjectRepo(store)
	buckets := repo.NewBucketRepo(store)
	objects := repo.NewObjectRepo(store)
	versions := repo.NewVersionRepo(store)
	sessions := repo.NewSessionRepo(store)
	events := repo.NewEventRepo(store)

	instances := repo.NewInstanceRepo(store)
	nics := repo.NewNICRepo(store)

	networks := repo.NewNetworkRepo(store)
	subnets := repo.NewSubnetRepo(store)
	firewalls := repo.NewFirewallRepo(store)
	routes := repo.NewRouteRepo(store)
	peerings := repo.NewPeeringRepo(store)
	addresses := repo.NewAddressRepo(store)
	routers := repo.NewRouterRepo(store)
	vpns := repo.NewVPNRepo(store)

	accounts := repo.NewServiceAccountRepo(store)
	keys := repo.NewServiceAccountKeyRepo(store)
	policies := repo.NewPolicyRepo(store)

	locks := cluster.NewKeyLock(256)

	driver, err := container.NewDockerDriver(cfg.Compute.DockerHost)
	if err != nil {
		return nil, cmn.WrapInternal(err, "connect to container runtime at %s", cfg.Compute.DockerHost)
	}

	vpcSvc := vpc.New(networks, subnets, firewalls, routes, peerings, addresses, routers, vpns, nics,
		driver, locks, clock, cfg.Compute.CallTimeout)
	computeSvc := compute.New(instances, nics, driver, vpcSvc, clock, locks, cfg.Compute.CallTimeout)
	vpcSvc.SetInstanceLookup(computeSvc)

	notifier := objectstore.NewNotifier(events, buckets)
	objSvc := objectstore.New(store, objects, versions, buckets, sessions, cs, locks, clock, notifier)
	signer := objectstore.NewSigner(cfg.Storage.SignedURLSecret, clock)

	iamSvc := iam.New(accounts, keys, policies, clock)
	tokens := iam.NewTokenIssuer(cfg.Auth.Secret, clock, 1*time.Hour)
	revoked := iam.NewRevocationList()

	auth := pipeline.NewAuthenticator(cfg.Auth.Mode, tokens, revoked, nil)
	limiter := pipeline.NewLimiter(cfg.RateLimit.Enabled, cfg.RateLimit.Window, cfg.RateLimit.MaxPerWin, cfg.RateLimit.RedisAddr)
	pl := pipeline.New(auth, limiter)

	deps := &api.Deps{
		Pipeline: pl,
		Projects: projects,
		Buckets:  buckets,
		Objects:  objSvc,
		Signer:   signer,
		Compute:  computeSvc,
		VPC:      vpcSvc,
		IAM:      iamSvc,
		Tokens:   tokens,
		Revoked:  revoked,
		Clock:    clock,
		BaseURL:  cfg.Storage.EmulatorHost,
		AuthMode: cfg.Auth.Mode,
	}

	return &App{
		Config:     cfg,
		Router:     api.NewRouter(deps),
		Objects:    objSvc,
		Compute:    computeSvc,
		VPC:        vpcSvc,
		IAM:        iamSvc,
		Projects:   projects,
		Buckets:    buckets,
		lifecycle:  objectstore.NewLifecycleWorker(objSvc, buckets, versions, clock, cfg.Storage.LifecycleInterval),
		reconciler: compute.NewReconciler(instances, driver, locks, cfg.Compute.ReconcileInterval, cfg.Compute.CallTimeout),
		metaStore:  store,
	}, nil
}

// Close releases the metadata store handle. Safe to call once, after
// Run's context is cancelled.
func (a *App) Close() error {
	return a.metaStore.Close()
}

// ReconcileOnce runs a single compute-instance reconciliation pass,
// backing the "cloudemu reconcile" CLI invocation.
func (a *App) ReconcileOnce(ctx context.Context) { a.reconciler.RunOnce(ctx) }

// RunLifecycleOnce runs a single object-store lifecycle evaluation pass,
// backing the "cloudemu lifecycle run-once" CLI invocation.
func (a *App) RunLifecycleOnce() { a.lifecycle.RunOnce() }

// Run starts the background workers (lifecycle rule execution, instance
// reconciliation) and blocks serving HTTP on addr until ctx is cancelled
// or ListenAndServe returns a non-shutdown error. The workers and the
// server run under one errgroup so a fatal serve error also cancels the
// workers.
func (a *App) Run(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.lifecycle.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.reconciler.Run(gctx)
		return nil
	})

	srv := &http.Server{Addr: addr, Handler: a.Router}
	g.Go(func() error {
		glog.Infof("cloudemu listening on %s", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
