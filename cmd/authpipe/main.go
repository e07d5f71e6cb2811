// Command authpipe probes an API through the authenticated request pipeline.
package main

import (
	"log"
	"os"

	"github.com/viant/authpipe/probe"
)

func main() {
	if err := probe.Run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
