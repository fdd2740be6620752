// Package main: deployment tool.
//
// Builds the aiken project, extracts the validators and derives their addresses with cardano-cli. Run it from the
// aiken project directory, or point -project at it.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/tarancss/safesave/deploy"
)

func main() {
	// get command line flags
	var conf deploy.Config

	flag.StringVar(&conf.Network, "network", "preprod", "network to deploy to: mainnet, preprod or preview")
	flag.StringVar(&conf.Magic, "magic", "", "testnet magic, derived from the network when empty")
	flag.StringVar(&conf.ProjectDir, "project", ".", "aiken project directory")
	flag.StringVar(&conf.Dir, "dir", "deployment", "deployment directory, relative to the project directory")
	flag.StringVar(&conf.Aiken, "aiken", "aiken", "aiken command line")
	flag.StringVar(&conf.CardanoCLI, "cardano-cli", "cardano-cli", "cardano-cli command line")
	flag.BoolVar(&conf.SkipBuild, "skip-build", false, "use the plutus.json already built")
	verbose := flag.Bool("v", false, "flag to log debug messages")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	// capture CTRL+C to kill the running tool
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := deploy.New(conf, nil)

	info, err := d.Deploy(ctx)
	if err != nil {
		log.Fatalf("Deployment failed: %+v", err)
	}

	log.Infof("Deployment to %s complete, files created in %s:", info.Network, d.Dir())

	for _, f := range []string{deploy.AddressesFile, deploy.EnvFile, deploy.InfoFile, deploy.GuideFile} {
		log.Infof("  %s", filepath.Join(d.Dir(), f))
	}

	log.Infof("Next, append the addresses to the backend environment: cat %s >> .env",
		filepath.Join(d.Dir(), deploy.EnvFile))
}
