package command

import (
	"fmt"
	"strings"
)

// PauseCommand is a command implementation that allows operators to
// suspend and resume convergence activity on a scaling group.
type PauseCommand struct {
	Meta
}

// Help provides the help information for the pause command.
func (c *PauseCommand) Help() string {
	helpText := `
Usage: otter pause [options] <tenant> <group>

  Suspends convergence activity on a scaling group. A paused group
  still accepts policy, schedule and resync triggers but none of them
  produce scaling actions until the group is resumed.

  General Options:

    -address=<addr>
      The HTTP API address of the Otter agent to operate against. By
      default, this is http://127.0.0.1:8000.

    -resume
      Resume convergence activity on the group instead of pausing it.
`
	return strings.TrimSpace(helpText)
}

// Synopsis provides a brief summary of the pause command.
func (c *PauseCommand) Synopsis() string {
	return "Pause or resume convergence on a scaling group"
}

// Run executes the pause command against a running agent.
func (c *PauseCommand) Run(args []string) int {

	var resume bool

	flags := c.Meta.FlagSet("pause", FlagSetClient)
	flags.Usage = func() { c.UI.Error(c.Help()) }
	flags.BoolVar(&resume, "resume", false, "")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	args = flags.Args()
	if len(args) != 2 {
		c.UI.Error(c.Help())
		return 1
	}
	tenant, group := args[0], args[1]

	client, err := c.Meta.Client()
	if err != nil {
		c.UI.Error(fmt.Sprintf("Error setting up the API client: %v", err))
		return 1
	}

	if resume {
		if err := client.Groups().Resume(tenant, group); err != nil {
			c.UI.Error(fmt.Sprintf("Error resuming group %s/%s: %v", tenant, group, err))
			return 1
		}
		c.UI.Output(fmt.Sprintf("Group %s/%s has been resumed", tenant, group))
		return 0
	}

	if err := client.Groups().Pause(tenant, group); err != nil {
		c.UI.Error(fmt.Sprintf("Error pausing group %s/%s: %v", tenant, group, err))
		return 1
	}

	c.UI.Output(fmt.Sprintf("Group %s/%s has been paused", tenant, group))
	return 0
}
