package command

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"
)

const (
	// DefaultInitName is the default name we use when
	// initializing the example file
	DefaultInitName = "example.json"
)

type InitCommand struct {
	Meta
}

// Help provides the help information for the init command.
func (c *InitCommand) Help() string {
	helpText := `
Usage: otter init

  Creates an example scaling group document that can be used as a
  starting point to customize further. The document carries the group
  configuration, the launch configuration and a pair of scaling
  policies.
`
	return strings.TrimSpace(helpText)
}

// Synopsis is provides a brief summary of the init command.
func (c *InitCommand) Synopsis() string {
	return "Create an example Otter scaling group document"
}

// Run triggers the init command to write the example.json file out to the
// current directory.
func (c *InitCommand) Run(args []string) int {

	// The command should be used with 0 extra flags.
	if len(args) != 0 {
		c.UI.Error(c.Help())
		return 1
	}

	// Check if the file already exists.
	_, err := os.Stat(DefaultInitName)
	if err != nil && !os.IsNotExist(err) {
		c.UI.Error(fmt.Sprintf("Failed to stat '%s': %v", DefaultInitName, err))
		return 1
	}
	if !os.IsNotExist(err) {
		c.UI.Error(fmt.Sprintf("Scaling group document '%s' already exists", DefaultInitName))
		return 1
	}

	// Write the example file to the relative local directory where Otter
	// was invoked from.
	err = ioutil.WriteFile(DefaultInitName, []byte(defaultGroupDocument), 0660)
	if err != nil {
		c.UI.Error(fmt.Sprintf("Failed to write '%s': %v", DefaultInitName, err))
		return 1
	}

	c.UI.Output(fmt.Sprintf("Example scaling group document written to %s", DefaultInitName))
	return 0
}

var defaultGroupDocument = strings.TrimSpace(`
{
  "config": {
    "name": "cache",
    "cooldown": 60,
    "min_entities": 1,
    "max_entities": 10
  },
  "launch": {
    "type": "launch_server",
    "args": {
      "image": "ami-0c852d84",
      "flavor": "t2.small",
      "network": "subnet-8a4f11c3",
      "load_balancers": [
        {"name": "cache-lb", "port": 6379, "draining_timeout": 30}
      ]
    }
  },
  "policies": [
    {"name": "scale up", "change": 1, "cooldown": 60},
    {"name": "scale down", "change_percent": -5.5, "cooldown": 60}
  ]
}
`)
