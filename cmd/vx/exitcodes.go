package main

import "os"

// Exit codes the executor pipeline can't derive on its own: parse errors
// never reach vxexec, and Ctrl-C is a main()-level signal concern. Child
// exit codes and signal deaths (128+signal) come back through vxexec.Execute
// and vxexec.ExitCode unchanged.
const (
	ExitSuccess   = 0
	ExitGeneral   = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

// exitWithCode exits the process with the given code.
func exitWithCode(code int) {
	os.Exit(code)
}
