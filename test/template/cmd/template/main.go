package main

import (
	"context"
	"fmt"
	"os"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/protect"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/worker"
	"github.com/palantir/palantir-compute-module-wine-enricher/test/template/processor"
)

func main() {
	tbl, err := table.Parse("Name;Region;SKU\nBarolo;;B-19\n")
	if err != nil {
		panic(err)
	}
	p := processor.Processor{
		Headers:   tbl.Headers,
		Protected: protect.Classify(tbl.Headers),
		Provider: core.CompleteFunc(func(context.Context, string) (core.Completion, error) {
			return core.Completion{Text: `{"Region":"Piedmont"}`}, nil
		}),
	}
	rep, err := worker.Sequential(context.Background(), tbl.Rows, p.Process, worker.Options[table.Row, table.Row]{})
	if err != nil {
		panic(err)
	}
	for i, res := range rep.Results {
		tbl.Rows[i] = res.Output
	}
	_ = table.Write(os.Stdout, tbl)
	fmt.Println()
}
