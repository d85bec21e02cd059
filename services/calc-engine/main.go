// Command calc-engine runs the valuation kernel over assumption record files.
//
//	calc-engine check       --file record.yaml
//	calc-engine value       --file record.json
//	calc-engine series      --file record.hjson
//	calc-engine sensitivity --file record.yaml --param wacc_terminal --values 0.08,0.09,0.10
//	calc-engine scenarios   --file scenarios.yaml
//	calc-engine report      --file record.yaml --output html
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
