package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dmitrijs2005/ledgersync/internal/buildinfo"
	"github.com/dmitrijs2005/ledgersync/internal/server"
	"github.com/dmitrijs2005/ledgersync/internal/server/config"
)

// valueFlags take the following argument as their value.
var valueFlags = map[string]bool{"-a": true, "-d": true, "-s": true, "-t": true, "-l": true, "-c": true, "-config": true}

// positional returns the arguments that are neither flags nor flag values.
func positional(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			if valueFlags[a] && i+1 < len(args) {
				i++
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

func main() {

	cfg := config.LoadConfig()

	if pos := positional(os.Args[1:]); len(pos) > 0 {
		if pos[0] != "token" || len(pos) != 2 {
			fmt.Fprintln(os.Stderr, "usage: server [flags] [token <user-id>]")
			os.Exit(2)
		}
		tok, err := server.IssueToken(cfg, pos[1])
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
