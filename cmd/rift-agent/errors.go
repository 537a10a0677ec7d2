package main

import (
	"fmt"

	"github.com/riftctl/rift/internal/agentproto"
)

func errUnknownParams(reqType agentproto.RequestType) error {
	return fmt.Errorf("agent: no handler wired for request type %q", reqType)
}
