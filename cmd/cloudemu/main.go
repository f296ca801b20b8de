package main

import (
	"context"
	goflag "flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cloudemu/cloudemu/internal/app"
	"github.com/cloudemu/cloudemu/internal/cmn"
)

var (
	configPath string
	dbPath     string
	listenAddr string
)

func main() {
	defer glog.Flush()

	root := &cobra.Command{
		Use:   "cloudemu",
		Short: "A local emulator of a public-cloud control plane",
	}
	// glog registers its -v/-logtostderr flags on the standard flag set;
	// fold them into cobra's pflag set so one parse covers both.
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	root.PersistentFlags().AddFlagSet(pflag.CommandLine)
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON config file overlaid on defaults")
	root.PersistentFlags().StringVar(&dbPath, "db", "cloudemu.db", "path to the metadata store file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "address to listen on")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a starter project and bucket for local experimentation",
		RunE:  runSeed,
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single compute-instance reconciliation pass and exit",
		RunE:  runReconcile,
	}

	lifecycleCmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Object-store lifecycle rule tooling",
	}
	lifecycleRunOnceCmd := &cobra.Command{
		Use:   "run-once",
		Short: "Evaluate every bucket's lifecycle rules a single time and exit",
		RunE:  runLifecycleOnce,
	}
	lifecycleCmd.AddCommand(lifecycleRunOnceCmd)

	root.AddCommand(serveCmd, seedCmd, reconcileCmd, lifecycleCmd)

	if err := root.Execute(); err != nil {
		glog.Exitf("cloudemu: %v", err)
	}
}

func loadConfig() (*cmn.Config, error) {
	cfg, err := cmn.LoadFromEnv(cmn.Default())
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		cfg, err = cmn.LoadFromFile(configPath, cfg)
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, dbPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx, listenAddr)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, dbPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return seedDemoProject(a)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, dbPath)
	if err != nil {
		return err
	}
	defer a.Close()
	a.ReconcileOnce(cmd.Context())
	return nil
}

func runLifecycleOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, dbPath)
	if err != nil {
		return err
	}
	defer a.Close()
	a.RunLifecycleOnce()
	return nil
}
