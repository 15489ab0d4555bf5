package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "honed.pid"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(os.Args[2:])
	case "import":
		err = cmdImport(os.Args[2:])
	case "play":
		err = cmdPlay()
	case "stats":
		err = cmdStats()
	case "badges":
		err = cmdBadges()
	case "leaderboard":
		err = cmdLeaderboard(os.Args[2:])
	case "settings":
		err = cmdSettings(os.Args[2:])
	case "daemon":
		err = cmdDaemon(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("hone %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Hone - Tactics training from your own games

Usage:
  hone <command> [arguments]

Setup Commands:
  init [username]     Initialize Hone (first-time setup)
  settings            Show or change puzzle selection settings

Training Commands:
  import <pgn-file>   Import annotated games as puzzles
  play                Interactive training session
  stats               Show experience, streaks and puzzle counts
  badges              Show earned badges
  leaderboard         Show the experience leaderboard

Worker Commands:
  daemon start        Start the honed import worker
  daemon stop         Stop the worker
  daemon status       Show worker status
  daemon logs         View worker logs

Integration Commands:
  mcp                 Start MCP server (for editor integration)

Other:
  help                Show this help message
  version             Show version information

Examples:
  hone init magnus                # Set up with your player name
  hone import annotated.pgn       # Mine puzzles from annotated games
  hone play                       # Train
  hone settings max_attempts 2    # Tighten the attempt budget`)
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
