package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/parlochat/parlo/internal/client"
	"github.com/parlochat/parlo/internal/connectivity"
	"github.com/parlochat/parlo/internal/profile"
	"github.com/parlochat/parlo/internal/remote"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	uidFlag := flag.String("uid", "", "signed-in user id")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *uidFlag == "" {
		fmt.Fprintln(os.Stderr, "error: -uid is required")
		os.Exit(1)
	}

	// Loopback mode: an in-process remote and a manually driven link.
	// A deployment against a real backend supplies its own Store and
	// connectivity Source here.
	app := fx.New(
		client.Module(client.Params{
			Profile: name,
			UID:     *uidFlag,
			Remote:  remote.NewMemory(),
			Source:  connectivity.NewManual(true),
		}),
	)

	app.Run()
}
