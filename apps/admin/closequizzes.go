package main

import (
	"context"
	"fmt"
)

// closeQuizzes runs the expired-quiz sweep once, optionally scoped to one owner.
func (cli *commandLine) closeQuizzes(ownerID string) error {
	ctx := context.Background()

	var closed []string
	if ownerID != "" {
		closed = cli.quizSvc.AutoCloseExpired(ctx, ownerID)
	} else {
		closed = cli.quizSvc.AutoCloseExpired(ctx)
	}

	fmt.Printf("close sweep done: %d quizzes targeted\n", len(closed))
	for _, id := range closed {
		fmt.Printf("  %s\n", id)
	}
	return nil
}
