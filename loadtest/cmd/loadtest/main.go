// Command loadtest drives the thread helper gateway the way the host runtime
// does. It pushes comment triggers over many runtime connections and reports
// reply latency per trigger type next to the server's own counters. Use
// -per-conn 0 with -hold to measure idle connection capacity.
//
// Usage:
//
//	loadtest <command> [options]
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "triggers":
		runTriggers(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  triggers    N connections each push M comment triggers, then optionally hold open")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
}
