// Command dwh loads the song play event log and song catalog into a
// warehouse star schema and validates the result.
package main

import (
	"os"

	"dwh/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
