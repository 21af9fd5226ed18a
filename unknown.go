package main

import (
	"context"
)

const unknownCommand = `fsreplay %s: unknown command
For a list of commands available, run 'fsreplay help'.`

func unknown(ctx context.Context, cmd string) error {
	return usageError(unknownCommand, cmd)
}
