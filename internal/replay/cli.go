package replay

import "os"

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	os.Stdout.WriteString(`padeliq replay
==============

Runs a recorded or generated padel rally through the scoring pipeline.

Usage:
  replay [options]

Options:
  -mode string        local (in process) or remote (submit to a server) (default "local")
  -fixture string     recording file to replay; a synthetic rally is generated when empty
  -save string        write the generated rally to this path
  -kind string        single or multi (default "multi")
  -seconds float      length of the generated rally (default 24)
  -serve-every int    make every n-th generated stroke a serve
  -racket             add a racket next to the first player
  -target int         target court slot 1-4 for multi-player videos
  -user string        user id (default "replay")
  -video string       video id (default "rally")
  -ref string         video ref sent to the server in remote mode
  -url string         base URL of the service (default "http://localhost:9080")
  -repeat int         number of submissions in remote mode (default 1)
  -workers int        concurrent submitters in remote mode (default 4)
  -timeout duration   HTTP request timeout (default 30s)
  -log-format string  text or json (default "text")
  -verbose            enable debug logging
  -help               show this help message

Examples:
  # Score a generated match locally
  replay -kind multi -serve-every 8 -racket

  # Save a training rally and have a running server score it 20 times
  replay -mode remote -kind single -save /tmp/training.json -repeat 20
`)
}
