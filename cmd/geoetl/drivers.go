package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/woozymasta/geoetl/internal/server"
)

type DriversCommand struct {
	JSON bool `long:"json" description:"Print JSON instead of a table"`
}

func (c *DriversCommand) Execute([]string) error {
	drivers := app.reg.Drivers()

	if c.JSON {
		out := make([]server.DriverInfo, len(drivers))
		for i, d := range drivers {
			out[i] = server.NewDriverInfo(d)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DRIVER\tLONG NAME\tINFO\tREAD\tWRITE\tEXTENSIONS")
	for _, d := range drivers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ShortName,
			d.LongName,
			d.Capabilities.Info,
			d.Capabilities.Read,
			d.Capabilities.Write,
			strings.Join(d.Extensions, ", "),
		)
	}

	return tw.Flush()
}
