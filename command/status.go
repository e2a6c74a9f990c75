package command

import (
	"fmt"
	"strings"
)

// StatusCommand is a command implementation that reports the worker
// membership view of a running agent, or the state of a single scaling
// group when one is named.
type StatusCommand struct {
	Meta
}

// Help provides the help information for the status command.
func (c *StatusCommand) Help() string {
	helpText := `
Usage: otter status [options] [<tenant> <group>]

  Displays the worker membership view of a running Otter agent. When a
  tenant and group are supplied, the current state record of that
  scaling group is displayed instead.

  General Options:

    -address=<addr>
      The HTTP API address of the Otter agent to operate against. By
      default, this is http://127.0.0.1:8000.
`
	return strings.TrimSpace(helpText)
}

// Synopsis provides a brief summary of the status command.
func (c *StatusCommand) Synopsis() string {
	return "Display worker membership or scaling group state"
}

// Run executes the status command against a running agent.
func (c *StatusCommand) Run(args []string) int {

	flags := c.Meta.FlagSet("status", FlagSetClient)
	flags.Usage = func() { c.UI.Error(c.Help()) }

	if err := flags.Parse(args); err != nil {
		return 1
	}

	args = flags.Args()
	client, err := c.Meta.Client()
	if err != nil {
		c.UI.Error(fmt.Sprintf("Error setting up the API client: %v", err))
		return 1
	}

	switch len(args) {
	case 0:
		status, err := client.Status().Workers()
		if err != nil {
			c.UI.Error(fmt.Sprintf("Error querying worker status: %v", err))
			return 1
		}

		c.UI.Output(fmt.Sprintf("Worker      = %s", status.WorkerID))
		c.UI.Output(fmt.Sprintf("Workers     = %s", strings.Join(status.Workers, ", ")))
		c.UI.Output(fmt.Sprintf("OwnedGroups = %d", status.OwnedGroups))
		return 0

	case 2:
		tenant, group := args[0], args[1]
		state, err := client.Groups().State(tenant, group)
		if err != nil {
			c.UI.Error(fmt.Sprintf("Error querying group %s/%s: %v", tenant, group, err))
			return 1
		}

		c.UI.Output(fmt.Sprintf("Status          = %s", state.Status))
		c.UI.Output(fmt.Sprintf("DesiredCapacity = %d", state.DesiredCapacity))
		c.UI.Output(fmt.Sprintf("Active          = %d", len(state.Active)))
		c.UI.Output(fmt.Sprintf("Pending         = %d", len(state.Pending)))
		c.UI.Output(fmt.Sprintf("Paused          = %t", state.Paused))
		for _, e := range state.Errors {
			c.UI.Output(fmt.Sprintf("Error           = %s", e))
		}
		return 0

	default:
		c.UI.Error(c.Help())
		return 1
	}
}
