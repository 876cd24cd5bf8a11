//	@title			Transcripts API
//	@version		1.0
//	@description	Indexes transcripts and answers questions about them with streamed, source-grounded completions.

//	@license.name	MIT

//	@BasePath	/

//	@tag.name			transcripts
//	@tag.description	Transcript ingestion and question answering

//	@tag.name			health
//	@tag.description	Service health

package main

import (
	"os"

	"github.com/compozy/transcripts/cli"
)

func main() {
	cmd := cli.RootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
