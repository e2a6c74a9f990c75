package command

import (
	"flag"

	"github.com/mitchellh/cli"

	"github.com/rackerlabs/otter-sub001/api"
)

// FlagSetFlags is an enum to define what flags are present in the default
// FlagSet.
type FlagSetFlags uint

const (
	// FlagSetNone provides an empty FlagSet.
	FlagSetNone FlagSetFlags = 0

	// FlagSetClient provides the flags shared by every command that talks
	// to a running agent.
	FlagSetClient FlagSetFlags = 1 << iota
)

// Meta contains the meta-options and functionality that nearly every command
// inherits.
type Meta struct {
	UI cli.Ui

	// address is the HTTP API address of the agent to operate against.
	address string
}

// FlagSet returns a FlagSet with the common flags that every command
// implements.
func (m *Meta) FlagSet(n string, fs FlagSetFlags) *flag.FlagSet {
	f := flag.NewFlagSet(n, flag.ContinueOnError)

	if fs&FlagSetClient != 0 {
		f.StringVar(&m.address, "address", "", "")
	}

	return f
}

// Client is used to initialize and return a new API client using the
// address flag if one was set.
func (m *Meta) Client() (*api.Client, error) {
	config := api.DefaultConfig()
	if m.address != "" {
		config.Address = m.address
	}
	return api.NewClient(config)
}
