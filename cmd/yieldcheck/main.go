// Command yieldcheck reports calls suspending fibers from code which cannot
// run on a fiber.
//
// Usage:
//
//	yieldcheck [flags] [packages]
//
// It can also run as a vet tool:
//
//	go vet -vettool=$(which yieldcheck) ./...
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/stealthrocket/fiber/yieldcheck"
)

func main() { singlechecker.Main(yieldcheck.Analyzer) }
